package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KafClaw/robotd/internal/auth"
	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
	"github.com/KafClaw/robotd/internal/legacy"
	"github.com/KafClaw/robotd/internal/plugin"
)

// ConfigLoader loads user configuration into m, typically by calling
// AddRobot once per configured robot.
type ConfigLoader func(ctx context.Context, m *Manager, path string) error

type storeKey struct {
	driver string
	path   string
}

// Manager owns the robots of one process and runs them.
type Manager struct {
	mu     sync.Mutex
	robots []*Robot

	registry *plugin.Registry
	globals  *legacy.Globals
	loader   ConfigLoader
	perRobot bool
	open     legacy.StoreOpener
	finder   auth.UserFinder
	auditor  auth.Auditor
	logger   *slog.Logger
	logLevel string

	storesMu sync.Mutex
	stores   map[storeKey]*kv.SQLiteStore
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the plugin registry robots are built from.
// Default is plugin.Default.
func WithRegistry(r *plugin.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithGlobals sets the legacy globals holding the shared default config.
// Default is legacy.Default().
func WithGlobals(g *legacy.Globals) Option {
	return func(m *Manager) { m.globals = g }
}

// WithConfigLoader replaces LoadConfigFile.
func WithConfigLoader(l ConfigLoader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithPerRobotConfig makes AddRobot hand each configurator the new robot's
// own config. Without it the configurator edits the shared default config
// and the robot is built from an untouched default.
func WithPerRobotConfig(enabled bool) Option {
	return func(m *Manager) { m.perRobot = enabled }
}

// WithStoreOpener replaces kv.Open.
func WithStoreOpener(open legacy.StoreOpener) Option {
	return func(m *Manager) { m.open = open }
}

// WithUserFinder sets the user lookup of every robot's auth service.
func WithUserFinder(f auth.UserFinder) Option {
	return func(m *Manager) { m.finder = f }
}

// WithAuditor sets the auditor of every robot's auth service.
func WithAuditor(a auth.Auditor) Option {
	return func(m *Manager) { m.auditor = a }
}

// WithLogger sets the logger robots derive theirs from.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithLogLevel fixes the level of every robot's logger, overriding each
// robot's robot.logLevel.
func WithLogLevel(level string) Option {
	return func(m *Manager) { m.logLevel = level }
}

// NewManager returns a Manager with no robots.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		registry: plugin.Default,
		loader:   LoadConfigFile,
		open:     kv.Open,
		stores:   make(map[storeKey]*kv.SQLiteStore),
	}
	for _, o := range opts {
		o(m)
	}
	if m.globals == nil {
		m.globals = legacy.Default()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Globals returns the legacy globals the manager shares its default config with.
func (m *Manager) Globals() *legacy.Globals { return m.globals }

// AddRobot configures and appends a new robot. On error the robot list is
// unchanged.
func (m *Manager) AddRobot(configurator func(*config.RobotConfig)) (*Robot, error) {
	if configurator == nil {
		return nil, &ConfigurationError{Err: ErrNoConfigurator}
	}

	cfg := config.DefaultRobotConfig()
	if m.perRobot {
		configurator(cfg)
	} else {
		configurator(m.globals.DefaultConfig())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.build(cfg, m.freeStoreKey(cfg.Robot.Name))
	if err != nil {
		return nil, err
	}
	m.robots = append(m.robots, r)

	m.logger.Info("robot added", "robot", r.Name(), "robot_id", r.ID(), "adapter", r.Adapter())
	return r, nil
}

// Robots returns the robots in registration order.
func (m *Manager) Robots() []*Robot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Robot, len(m.robots))
	copy(out, m.robots)
	return out
}

// Run loads the user configuration at path and runs the robots one after
// another, each call blocking until that robot stops. With no robots
// configured a robot is built from the shared default config and run.
// Run stops at the first robot error.
func (m *Manager) Run(ctx context.Context, path string) error {
	if m.loader != nil {
		if err := m.loader(ctx, m, path); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	robots := m.Robots()
	if len(robots) == 0 {
		r, err := m.build(m.globals.DefaultConfig(), "")
		if err != nil {
			return err
		}
		defer r.Close()
		robots = []*Robot{r}
	}

	for _, r := range robots {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := r.Run(ctx); err != nil {
			return fmt.Errorf("robot %s: %w", r.Name(), err)
		}
	}
	return nil
}

// freeStoreKey returns the normalized name, or when an earlier robot already
// uses it, the name suffixed with the robot's list index. Legacy mode builds
// every robot from the default config, so their names all collide.
// m.mu must be held.
func (m *Manager) freeStoreKey(name string) string {
	base := plugin.NormalizeKey(name)
	taken := make(map[string]bool, len(m.robots))
	for _, r := range m.robots {
		taken[r.storeKey] = true
	}
	key := base
	for i := len(m.robots); taken[key]; i++ {
		key = fmt.Sprintf("%s-%d", base, i)
	}
	return key
}

func (m *Manager) build(cfg *config.RobotConfig, storeKey string) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Robot: cfg.Robot.Name, Err: err}
	}
	root, err := m.rootStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return New(cfg, Deps{
		Store:      root.Namespace(cfg.Store.Namespace),
		Registry:   m.registry,
		UserFinder: m.finder,
		Auditor:    m.auditor,
		Logger:     m.logger,
		LogLevel:   m.logLevel,
		StoreKey:   storeKey,
	})
}

func (m *Manager) rootStore(cfg config.StoreConfig) (*kv.SQLiteStore, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	key := storeKey{driver: cfg.Driver, path: path}

	m.storesMu.Lock()
	defer m.storesMu.Unlock()
	if s, ok := m.stores[key]; ok {
		return s, nil
	}
	s, err := m.open(cfg)
	if err != nil {
		return nil, err
	}
	m.stores[key] = s
	return s, nil
}

// Close releases every robot and every store the manager opened.
func (m *Manager) Close() error {
	var errs []error
	for _, r := range m.Robots() {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.storesMu.Lock()
	for k, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.stores, k)
	}
	m.storesMu.Unlock()
	return errors.Join(errs...)
}

// LoadConfigFile is the default ConfigLoader. Top-level sections of the file
// are applied to the shared default config and every "robots" entry becomes
// one AddRobot call.
func LoadConfigFile(_ context.Context, m *Manager, path string) error {
	uc, err := config.ReadUserConfig(path)
	if err != nil {
		return err
	}
	if err := config.Apply(m.globals.DefaultConfig(), uc.Base); err != nil {
		return fmt.Errorf("%s: %w", uc.Path, err)
	}
	for i, raw := range uc.Robots {
		if err := config.Apply(config.DefaultRobotConfig(), raw); err != nil {
			return fmt.Errorf("%s: robots[%d]: %w", uc.Path, i, err)
		}
		var applyErr error
		_, err := m.AddRobot(func(cfg *config.RobotConfig) {
			applyErr = config.Apply(cfg, raw)
		})
		if applyErr != nil {
			return fmt.Errorf("%s: robots[%d]: %w", uc.Path, i, applyErr)
		}
		if err != nil {
			return fmt.Errorf("%s: robots[%d]: %w", uc.Path, i, err)
		}
	}
	return nil
}
