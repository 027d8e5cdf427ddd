package inventory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docker/go-units"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// KubernetesSource lists pods in one namespace as targets.
type KubernetesSource struct {
	clientset     kubernetes.Interface
	namespace     string
	labelSelector string
	now           func() time.Time
}

// NewKubernetesSource builds a clientset from the in-cluster config or the
// default kubeconfig and checks the namespace exists.
func NewKubernetesSource(ctx context.Context, namespace, labelSelector string) (*KubernetesSource, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
		if home := homedir.HomeDir(); home != "" && kubeconfig == "" {
			kubeconfig = home + "/.kube/config"
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("k8s config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}
	if _, err := clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{}); err != nil {
		return nil, fmt.Errorf("k8s namespace check: %w", err)
	}
	log.Printf("[inventory] kubernetes namespace %s reachable", namespace)
	return newKubernetesSource(clientset, namespace, labelSelector), nil
}

func newKubernetesSource(clientset kubernetes.Interface, namespace, labelSelector string) *KubernetesSource {
	return &KubernetesSource{
		clientset:     clientset,
		namespace:     namespace,
		labelSelector: labelSelector,
		now:           time.Now,
	}
}

func (k *KubernetesSource) BackendName() string {
	return "kubernetes"
}

func (k *KubernetesSource) ListTargets(ctx context.Context) ([]Target, error) {
	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: k.labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", k.namespace, err)
	}
	targets := make([]Target, 0, len(pods.Items))
	for i := range pods.Items {
		targets = append(targets, k.toTarget(&pods.Items[i]))
	}
	return targets, nil
}

func (k *KubernetesSource) toTarget(pod *corev1.Pod) Target {
	name := pod.Name
	if app := pod.Labels["app"]; app != "" {
		name = app
	}
	t := Target{
		ID:       pod.Name,
		Name:     name,
		Status:   podStatus(pod),
		Labels:   pod.Labels,
		NodeAddr: pod.Status.HostIP,
		Created:  pod.CreationTimestamp.UTC().Format(time.RFC3339),
	}
	for _, c := range pod.Spec.Containers {
		if t.Image == "" {
			t.Image = c.Image
		}
		for _, p := range c.Ports {
			t.Ports = append(t.Ports, fmt.Sprintf("%d/%s", p.ContainerPort, protocolName(p.Protocol)))
		}
	}
	if t.Status == "running" && pod.Status.StartTime != nil {
		t.Uptime = units.HumanDuration(k.now().Sub(pod.Status.StartTime.Time))
	}
	return t
}

func protocolName(p corev1.Protocol) string {
	switch p {
	case corev1.ProtocolUDP:
		return "udp"
	case corev1.ProtocolSCTP:
		return "sctp"
	default:
		return "tcp"
	}
}

// podStatus follows the pod phase; a running pod counts as running only once
// every container is ready.
func podStatus(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "stopped"
	}
	switch pod.Status.Phase {
	case corev1.PodRunning:
		if len(pod.Status.ContainerStatuses) == 0 {
			return "creating"
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil || !cs.Ready {
				return "creating"
			}
		}
		return "running"
	case corev1.PodPending:
		return "creating"
	case corev1.PodSucceeded:
		return "stopped"
	default:
		return "error"
	}
}
