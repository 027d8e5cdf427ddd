package inventory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
)

// containerLister is the part of the docker client the source needs.
type containerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// DockerSource lists containers from a local or remote docker daemon.
type DockerSource struct {
	client containerLister
	// LabelFilter restricts the listing, e.g. "termhub.enabled=true".
	LabelFilter string
	now         func() time.Time
}

// NewDockerSource connects to the daemon (DOCKER_HOST and friends from the
// environment, or host when set) and checks it answers.
func NewDockerSource(ctx context.Context, host, labelFilter string) (*DockerSource, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker ping: %w", err)
	}
	log.Println("[inventory] docker daemon connected")
	return newDockerSource(cli, labelFilter), nil
}

func newDockerSource(cli containerLister, labelFilter string) *DockerSource {
	return &DockerSource{client: cli, LabelFilter: labelFilter, now: time.Now}
}

func (d *DockerSource) BackendName() string {
	return "docker"
}

func (d *DockerSource) ListTargets(ctx context.Context) ([]Target, error) {
	opts := container.ListOptions{All: true}
	if d.LabelFilter != "" {
		opts.Filters = filters.NewArgs(filters.Arg("label", d.LabelFilter))
	}
	containers, err := d.client.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	targets := make([]Target, 0, len(containers))
	for _, c := range containers {
		targets = append(targets, d.toTarget(c))
	}
	return targets, nil
}

func (d *DockerSource) toTarget(c container.Summary) Target {
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	id := c.ID
	if len(id) > 12 {
		id = id[:12]
	}
	created := time.Unix(c.Created, 0)
	t := Target{
		ID:      id,
		Name:    name,
		Status:  dockerStatus(string(c.State), c.Status),
		Labels:  c.Labels,
		Image:   c.Image,
		Ports:   dockerPorts(c.Ports),
		Created: created.UTC().Format(time.RFC3339),
	}
	if t.Status == "running" {
		t.Uptime = units.HumanDuration(d.now().Sub(created))
	}
	return t
}

// dockerStatus maps container state (and the health suffix docker puts in
// the status text) onto target statuses.
func dockerStatus(state, statusText string) string {
	switch state {
	case "running":
		if strings.Contains(statusText, "(unhealthy)") {
			return "error"
		}
		if strings.Contains(statusText, "(health: starting)") {
			return "creating"
		}
		return "running"
	case "created", "restarting":
		return "creating"
	case "dead":
		return "error"
	default:
		return "stopped"
	}
}

func dockerPorts(ports []container.Port) []string {
	var result []string
	for _, p := range ports {
		port, err := nat.NewPort(p.Type, fmt.Sprint(p.PrivatePort))
		if err != nil {
			continue
		}
		if p.PublicPort != 0 {
			result = append(result, fmt.Sprintf("%s:%d->%s", p.IP, p.PublicPort, port))
		} else {
			result = append(result, string(port))
		}
	}
	sort.Strings(result)
	return result
}
