// Package legacy keeps the pre-multi-robot global API working: a single
// implicit default config, logger and store shared by the whole process.
//
// Every exported accessor except DefaultConfig logs a deprecation warning.
// New code should configure robots through robot.Manager and use the
// per-robot auth.Service instead.
package legacy

import (
	"io"
	"log/slog"
	"sync"

	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
	"github.com/KafClaw/robotd/internal/logging"
)

// StoreOpener opens the root store for a store section.
type StoreOpener func(cfg config.StoreConfig) (*kv.SQLiteStore, error)

// Globals is the lazily built process-wide state.
type Globals struct {
	mu     sync.Mutex
	config *config.RobotConfig

	logOnce sync.Once
	logger  *slog.Logger
	logOut  io.Writer

	storeMu sync.Mutex
	root    *kv.SQLiteStore
	store   kv.Store
	open    StoreOpener
}

// Option configures Globals.
type Option func(*Globals)

// WithLogOutput sets where the global logger writes. Default is stderr.
func WithLogOutput(w io.Writer) Option {
	return func(g *Globals) { g.logOut = w }
}

// WithStoreOpener replaces kv.Open.
func WithStoreOpener(open StoreOpener) Option {
	return func(g *Globals) { g.open = open }
}

// New returns empty Globals; nothing is built until first access.
func New(opts ...Option) *Globals {
	g := &Globals{open: kv.Open}
	for _, o := range opts {
		o(g)
	}
	return g
}

var std = New()

// Default returns the process-wide Globals.
func Default() *Globals { return std }

// DefaultConfig returns the shared default config, building it on first
// use. It is the non-deprecated accessor used by the runtime itself.
func (g *Globals) DefaultConfig() *config.RobotConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.config == nil {
		g.config = config.DefaultRobotConfig()
	}
	return g.config
}

// Config returns the shared default config.
//
// Deprecated: use Robot.Config.
func (g *Globals) Config() *config.RobotConfig {
	g.deprecated("legacy.Config", "robot.Robot.Config")
	return g.DefaultConfig()
}

// Configure passes the shared default config to fn.
//
// Deprecated: use robot.Manager.AddRobot.
func (g *Globals) Configure(fn func(*config.RobotConfig)) {
	g.deprecated("legacy.Configure", "robot.Manager.AddRobot")
	fn(g.DefaultConfig())
}

// ClearConfig drops the shared default config; the next access rebuilds it.
//
// Deprecated: configure robots through robot.Manager.
func (g *Globals) ClearConfig() {
	g.deprecated("legacy.ClearConfig", "robot.Manager.AddRobot")
	g.mu.Lock()
	g.config = nil
	g.mu.Unlock()
}

// Logger returns the global logger. Its level comes from the default
// config's robot.logLevel at first call and is not re-derived afterwards.
func (g *Globals) Logger() *slog.Logger {
	g.logOnce.Do(func() {
		g.logger = logging.New(g.DefaultConfig().Robot.LogLevel, g.logOut)
	})
	return g.logger
}

// Store returns the root store opened from the default config's store
// section and namespaced under its base namespace. The connection is
// opened once; a failed open is retried on the next call.
func (g *Globals) Store() (kv.Store, error) {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	if g.store != nil {
		return g.store, nil
	}
	cfg := g.DefaultConfig().Store
	root, err := g.open(cfg)
	if err != nil {
		return nil, err
	}
	g.root = root
	g.store = root.Namespace(cfg.Namespace)
	return g.store, nil
}

// Close closes the global store connection, if one was opened.
func (g *Globals) Close() error {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	if g.root == nil {
		return nil
	}
	err := g.root.Close()
	g.root, g.store = nil, nil
	return err
}

func (g *Globals) deprecated(oldMethod, newMethod string) {
	g.Logger().Warn("deprecated call", "old_method", oldMethod, "new_method", newMethod)
}

// Config returns the process-wide default config.
//
// Deprecated: use Robot.Config.
func Config() *config.RobotConfig { return std.Config() }

// Configure passes the process-wide default config to fn.
//
// Deprecated: use robot.Manager.AddRobot.
func Configure(fn func(*config.RobotConfig)) { std.Configure(fn) }

// ClearConfig drops the process-wide default config.
//
// Deprecated: configure robots through robot.Manager.
func ClearConfig() { std.ClearConfig() }

// Logger returns the process-wide logger.
func Logger() *slog.Logger { return std.Logger() }

// Store returns the process-wide root store.
func Store() (kv.Store, error) { return std.Store() }
