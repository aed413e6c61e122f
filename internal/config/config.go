// Package config provides robot configuration types and loading for robotd.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLogLevel is returned by Validate for an unknown robot.logLevel.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrNoAdapter is returned by Validate when robot.adapter is empty.
	ErrNoAdapter = errors.New("no adapter configured")
)

// RobotConfig is the configuration of a single robot.
// Top-level groups: Robot, Store, Audit, Adapters, Handlers.
//
// Fields are overridden from the environment as ROBOTD_<GROUP>_<FIELD>;
// they carry no envconfig alt names so bare variables such as PATH are
// never picked up.
type RobotConfig struct {
	Robot    RobotSection               `json:"robot"`
	Store    StoreConfig                `json:"store"`
	Audit    AuditConfig                `json:"audit"`
	Adapters map[string]json.RawMessage `json:"adapters,omitempty"`
	Handlers map[string]HandlerConfig   `json:"handlers,omitempty"`
}

// HandlerConfig holds per-handler settings, keyed by lowercase handler name.
type HandlerConfig struct {
	// RestrictTo limits the handler to members of any of these groups.
	RestrictTo []string `json:"restrictTo,omitempty"`
}

// ---------------------------------------------------------------------------
// Robot – identity, adapter selection and administrators
// ---------------------------------------------------------------------------

// RobotSection groups the robot identity settings.
type RobotSection struct {
	Name        string   `json:"name"`
	MentionName string   `json:"mentionName" split_words:"true"`
	Alias       string   `json:"alias,omitempty"`
	Adapter     string   `json:"adapter"`
	LogLevel    string   `json:"logLevel" split_words:"true"`
	Admins      []string `json:"admins"`
}

// ---------------------------------------------------------------------------
// Store – key-value store connection
// ---------------------------------------------------------------------------

// StoreConfig holds the key-value store connection parameters.
type StoreConfig struct {
	Driver    string `json:"driver"` // "sqlite" (default) or "sqlite3"
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// ---------------------------------------------------------------------------
// Audit – membership change events
// ---------------------------------------------------------------------------

// AuditConfig configures publishing of authorization changes to Kafka.
// Auditing is disabled when KafkaBrokers is empty.
type AuditConfig struct {
	KafkaBrokers string `json:"kafkaBrokers" split_words:"true"`
	Topic        string `json:"topic"`
}

// Enabled reports whether a broker list is configured.
func (a AuditConfig) Enabled() bool {
	return strings.TrimSpace(a.KafkaBrokers) != ""
}

// Brokers splits the comma separated broker list.
func (a AuditConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(a.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Default values.
const (
	DefaultRobotName  = "Robot"
	DefaultAdapter    = "shell"
	DefaultLogLevel   = "info"
	DefaultDriver     = "sqlite"
	DefaultStorePath  = "~/.robotd/robotd.db"
	DefaultNamespace  = "robotd"
	DefaultAuditTopic = "robotd.auth.audit"
)

// DefaultRobotConfig returns a fresh RobotConfig with sensible defaults.
func DefaultRobotConfig() *RobotConfig {
	return &RobotConfig{
		Robot: RobotSection{
			Name:     DefaultRobotName,
			Adapter:  DefaultAdapter,
			LogLevel: DefaultLogLevel,
			Admins:   []string{},
		},
		Store: StoreConfig{
			Driver:    DefaultDriver,
			Path:      DefaultStorePath,
			Namespace: DefaultNamespace,
		},
		Audit: AuditConfig{
			Topic: DefaultAuditTopic,
		},
		Adapters: map[string]json.RawMessage{},
	}
}

// Validate checks the settings a robot cannot start without.
func (c *RobotConfig) Validate() error {
	if strings.TrimSpace(c.Robot.Adapter) == "" {
		return ErrNoAdapter
	}
	switch strings.ToLower(strings.TrimSpace(c.Robot.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Robot.LogLevel)
	}
	return nil
}

// IsAdmin reports whether id is listed in robot.admins.
func (c *RobotConfig) IsAdmin(id string) bool {
	for _, admin := range c.Robot.Admins {
		if admin == id {
			return true
		}
	}
	return false
}

// EffectiveMentionName falls back to the robot name.
func (c *RobotConfig) EffectiveMentionName() string {
	if m := strings.TrimSpace(c.Robot.MentionName); m != "" {
		return m
	}
	return c.Robot.Name
}

// RestrictionsFor returns the groups handler name is restricted to.
func (c *RobotConfig) RestrictionsFor(name string) []string {
	return c.Handlers[strings.ToLower(strings.TrimSpace(name))].RestrictTo
}

// AdapterSection decodes the adapter-specific section stored under key into out.
// A missing section leaves out untouched.
func (c *RobotConfig) AdapterSection(key string, out any) error {
	raw, ok := c.Adapters[strings.ToLower(strings.TrimSpace(key))]
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("adapters.%s: %w", key, err)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *RobotConfig) Clone() *RobotConfig {
	out := *c
	out.Robot.Admins = append([]string{}, c.Robot.Admins...)
	out.Adapters = make(map[string]json.RawMessage, len(c.Adapters))
	for k, v := range c.Adapters {
		out.Adapters[k] = append(json.RawMessage{}, v...)
	}
	if c.Handlers != nil {
		out.Handlers = make(map[string]HandlerConfig, len(c.Handlers))
		for k, v := range c.Handlers {
			out.Handlers[k] = HandlerConfig{RestrictTo: append([]string(nil), v.RestrictTo...)}
		}
	}
	return &out
}
