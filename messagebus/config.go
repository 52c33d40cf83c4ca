package messagebus

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default ports, overridable per call.
const (
	PortGlobalEvents    = 5555
	PortTaskResults     = 5556
	PortStateManagement = 5557
)

// Config holds every recognised configuration option for a MessageBus.
// All fields are optional; DefaultConfig fills in the documented
// defaults, and Config.applyDefaults back-fills zero values the way a
// typical options-with-defaults loader does.
type Config struct {
	HWMOutbound int `yaml:"hwm_outbound"`
	HWMInbound  int `yaml:"hwm_inbound"`

	PubSendTimeout  time.Duration `yaml:"pub_send_timeout"`
	PushSendTimeout time.Duration `yaml:"push_send_timeout"`
	ReqTotalTimeout time.Duration `yaml:"req_total_timeout"`
	RepRecvTimeout  time.Duration `yaml:"rep_recv_timeout"`
	RepSendTimeout  time.Duration `yaml:"rep_send_timeout"`

	FailedSocketCooldown time.Duration `yaml:"failed_socket_cooldown"`

	// HandlerMaxConcurrency is the semaphore capacity for subscriber
	// dispatch. Zero means unlimited.
	HandlerMaxConcurrency int `yaml:"handler_max_concurrency"`

	// LogLevelNoHandler selects how a subscribed message with no
	// registered handler is reported: "debug" (default) logs at debug
	// level, anything else is silent. No counter records the miss.
	LogLevelNoHandler string `yaml:"log_level_no_handler"`

	// Serializer selects the wire encoding: "json" (default) or "fast".
	Serializer string `yaml:"serializer"`

	CloseLingerMs int `yaml:"close_linger_ms"`

	// Debug enables verbose logging across every component.
	Debug bool `yaml:"debug"`

	// Logger receives debug/error lines. Defaults to a discard logger:
	// no file, no output, until a caller opts in.
	Logger *log.Logger `yaml:"-"`
}

// DefaultConfig returns a Config populated with every documented default.
func DefaultConfig() Config {
	return Config{
		HWMOutbound:           1000,
		HWMInbound:            1000,
		PubSendTimeout:        time.Second,
		PushSendTimeout:       time.Second,
		ReqTotalTimeout:       5 * time.Second,
		RepRecvTimeout:        30 * time.Second,
		RepSendTimeout:        5 * time.Second,
		FailedSocketCooldown:  10 * time.Second,
		HandlerMaxConcurrency: 0,
		LogLevelNoHandler:     "debug",
		Serializer:            "json",
		CloseLingerMs:         100,
	}
}

// applyDefaults back-fills zero-value fields so a partially-populated
// Config (e.g. unmarshaled from a handful of YAML keys) still behaves
// sanely.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.HWMOutbound == 0 {
		c.HWMOutbound = d.HWMOutbound
	}
	if c.HWMInbound == 0 {
		c.HWMInbound = d.HWMInbound
	}
	if c.PubSendTimeout == 0 {
		c.PubSendTimeout = d.PubSendTimeout
	}
	if c.PushSendTimeout == 0 {
		c.PushSendTimeout = d.PushSendTimeout
	}
	if c.ReqTotalTimeout == 0 {
		c.ReqTotalTimeout = d.ReqTotalTimeout
	}
	if c.RepRecvTimeout == 0 {
		c.RepRecvTimeout = d.RepRecvTimeout
	}
	if c.RepSendTimeout == 0 {
		c.RepSendTimeout = d.RepSendTimeout
	}
	if c.FailedSocketCooldown == 0 {
		c.FailedSocketCooldown = d.FailedSocketCooldown
	}
	if c.LogLevelNoHandler == "" {
		c.LogLevelNoHandler = d.LogLevelNoHandler
	}
	if c.Serializer == "" {
		c.Serializer = d.Serializer
	}
	if c.CloseLingerMs == 0 {
		c.CloseLingerMs = d.CloseLingerMs
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// LoadConfig reads a YAML file into a Config, applying defaults for any
// field the file leaves unset. Driving this loader (choosing the path,
// watching for changes) is an external concern — MessageBus itself
// never calls it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("messagebus: read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("messagebus: parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}
