package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	DataPath   string `envconfig:"DATA_PATH" default:"/app/data"`
	LogPath    string `envconfig:"LOG_PATH" default:""`
	Database   string `envconfig:"DATABASE" default:""`

	// Extra browser origins (host patterns) allowed to open session streams.
	// The hub's own origin and non-browser clients are always accepted.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// Terminal backend serving /ws/terminal/{id}
	TerminalBackend string `envconfig:"TERMINAL_BACKEND" default:"http://localhost:3000"`

	// Inventory: auto, rest, docker, kubernetes or static
	InventoryBackend string `envconfig:"INVENTORY_BACKEND" default:"auto"`
	InventoryURL     string `envconfig:"INVENTORY_URL" default:""`
	StaticTargets    string `envconfig:"STATIC_TARGETS" default:""`
	DockerHost       string `envconfig:"DOCKER_HOST" default:""`
	K8sNamespace     string `envconfig:"K8S_NAMESPACE" default:"default"`
	LabelSelector    string `envconfig:"LABEL_SELECTOR" default:""`

	// Terminal session settings. TerminalHistoryLines 0 keeps every line.
	TerminalHistoryLines     int           `envconfig:"TERMINAL_HISTORY_LINES" default:"0"`
	TerminalRecording        bool          `envconfig:"TERMINAL_RECORDING" default:"true"`
	TerminalRecordingEntries int           `envconfig:"TERMINAL_RECORDING_ENTRIES" default:"10000"`
	MaxSessions              int           `envconfig:"MAX_SESSIONS" default:"0"`
	HandshakeTimeout         time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"0s"`

	HealthSchedule   string        `envconfig:"HEALTH_SCHEDULE" default:"@every 30s"`
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"720h"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("TERMHUB", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// InventoryBaseURL returns the inventory REST base URL, falling back to the
// terminal backend which serves both in the default deployment.
func (s Settings) InventoryBaseURL() string {
	if s.InventoryURL != "" {
		return s.InventoryURL
	}
	return s.TerminalBackend
}
