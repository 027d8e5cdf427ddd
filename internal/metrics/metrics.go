package metrics

import (
	"time"

	"github.com/gluk-w/termhub/internal/termsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics collectors
var (
	// Sessions

	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "termhub_sessions_open",
			Help: "Number of sessions in the registry",
		},
	)

	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termhub_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "termhub_session_duration_seconds",
			Help:    "Time from open to close of a session",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		},
	)

	OutputLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termhub_output_lines_total",
			Help: "Total number of display lines appended, by kind",
		},
		[]string{"kind"},
	)

	// Input from display surfaces

	InputBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termhub_input_bytes_total",
			Help: "Total bytes of input written to sessions",
		},
	)

	InputRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termhub_input_rejected_total",
			Help: "Total input messages rejected before reaching a session",
		},
		[]string{"reason"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "termhub_stream_clients",
			Help: "Number of attached websocket display streams",
		},
	)

	// Backend

	BackendUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "termhub_backend_up",
			Help: "Whether the last terminal backend probe succeeded (1) or not (0)",
		},
	)

	BackendProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "termhub_backend_probe_duration_seconds",
			Help:    "Terminal backend probe latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Recorder feeds session events into the collectors. It implements
// termsession.Observer and termsession.LifecycleObserver.
type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) OnStateChanged(_ string, from, to termsession.ConnectionState) {
	SessionTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
}

func (r *Recorder) OnOutputAppended(_ string, line termsession.Line) {
	OutputLinesTotal.WithLabelValues(string(line.Kind)).Inc()
}

func (r *Recorder) OnSessionOpened(*termsession.Session) {
	SessionsOpen.Inc()
}

func (r *Recorder) OnSessionRemoved(s *termsession.Session) {
	SessionsOpen.Dec()
	SessionDuration.Observe(r.now().Sub(s.CreatedAt).Seconds())
}

// ObserveInput records input accepted from a display surface.
func ObserveInput(n int) {
	InputBytesTotal.Add(float64(n))
}

// ObserveRejectedInput records input dropped before it reached a session.
func ObserveRejectedInput(reason string) {
	InputRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveProbe records one backend health probe.
func ObserveProbe(ok bool, took time.Duration) {
	if ok {
		BackendUp.Set(1)
	} else {
		BackendUp.Set(0)
	}
	BackendProbeDuration.Observe(took.Seconds())
}
