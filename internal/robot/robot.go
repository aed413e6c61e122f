// Package robot builds robots from their configuration and runs them.
package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/robotd/internal/audit"
	"github.com/KafClaw/robotd/internal/auth"
	"github.com/KafClaw/robotd/internal/bus"
	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
	"github.com/KafClaw/robotd/internal/logging"
	"github.com/KafClaw/robotd/internal/plugin"
	"github.com/KafClaw/robotd/internal/policy"
	"github.com/google/uuid"
)

// RobotsNamespace holds the per-robot key-value namespaces.
const RobotsNamespace = "robots"

const shutdownTimeout = 5 * time.Second

var (
	// ErrUnknownAdapter is returned when robot.adapter names no registered adapter.
	ErrUnknownAdapter = errors.New("unknown adapter")
	// ErrNoConfigurator is returned by AddRobot when no configurator is given.
	ErrNoConfigurator = errors.New("no configurator given")
	// ErrNoStore is returned by New when Deps carries no store.
	ErrNoStore = errors.New("no store")
)

// ConfigurationError reports a robot that could not be configured.
type ConfigurationError struct {
	Robot string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Robot == "" {
		return "robot configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("robot %q configuration: %v", e.Robot, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Deps are the collaborators a Robot is built with.
type Deps struct {
	// Store is the root store already namespaced under store.namespace.
	Store    kv.Store
	Registry *plugin.Registry
	// UserFinder overrides the user directory for GroupsWithUsers.
	UserFinder auth.UserFinder
	// Auditor overrides the Kafka auditor built from the audit section.
	Auditor auth.Auditor
	Logger  *slog.Logger
	// LogLevel overrides robot.logLevel when set.
	LogLevel string
	// StoreKey names the robot's namespace under robots. Default is the
	// normalized robot name.
	StoreKey string
}

type namedHandler struct {
	name    string
	handler plugin.Handler
}

// Robot is one configured chat robot: an adapter, its handlers and the
// authorization service they share.
type Robot struct {
	id         string
	config     *config.RobotConfig
	base       kv.Store
	store      kv.Store
	users      *auth.Directory
	auth       *auth.Service
	bus        *bus.MessageBus
	adapterKey string
	storeKey   string
	adapter    plugin.Adapter
	handlers   []namedHandler
	policy     policy.Engine
	publisher  *audit.KafkaPublisher
	logger     *slog.Logger

	runMu sync.Mutex
}

// New builds a Robot from a copy of cfg.
func New(cfg *config.RobotConfig, deps Deps) (*Robot, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Err: errors.New("nil config")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Robot: cfg.Robot.Name, Err: err}
	}
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	registry := deps.Registry
	if registry == nil {
		registry = plugin.Default
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Robot{
		id:         uuid.NewString(),
		config:     cfg.Clone(),
		base:       deps.Store,
		bus:        bus.NewMessageBus(),
		adapterKey: plugin.NormalizeKey(cfg.Robot.Adapter),
	}
	level := r.config.Robot.LogLevel
	if deps.LogLevel != "" {
		level = deps.LogLevel
	}
	r.logger = logging.WithLevel(logger, level).With("robot", r.config.Robot.Name, "robot_id", r.id)
	r.storeKey = deps.StoreKey
	if r.storeKey == "" {
		r.storeKey = plugin.NormalizeKey(r.config.Robot.Name)
	}
	r.store = r.base.Namespace(RobotsNamespace).Namespace(r.storeKey)
	r.users = auth.NewDirectory(r.base.Namespace(auth.UsersNamespace))

	authOpts := []auth.Option{auth.WithLogger(r.logger)}
	if deps.UserFinder != nil {
		authOpts = append(authOpts, auth.WithUserFinder(deps.UserFinder))
	} else {
		authOpts = append(authOpts, auth.WithUserFinder(r.users))
	}
	switch {
	case deps.Auditor != nil:
		authOpts = append(authOpts, auth.WithAuditor(deps.Auditor))
	case r.config.Audit.Enabled():
		r.publisher = audit.NewKafkaPublisher(r.config.Audit)
		authOpts = append(authOpts, auth.WithAuditor(r.publisher))
	}
	r.auth = auth.New(r.config, r.base, authOpts...)
	r.policy = policy.NewGroupEngine(r.auth, r.config.RestrictionsFor)

	at, ok := registry.Adapter(r.adapterKey)
	if !ok || at.New == nil {
		r.Close()
		return nil, &ConfigurationError{Robot: r.config.Robot.Name, Err: fmt.Errorf("%w: %s", ErrUnknownAdapter, r.adapterKey)}
	}
	adapter, err := at.New(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create adapter %s: %w", r.adapterKey, err)
	}
	r.adapter = adapter

	for _, ht := range registry.Handlers() {
		if ht.New == nil {
			continue
		}
		h, err := ht.New(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create handler %s: %w", ht.Name, err)
		}
		r.handlers = append(r.handlers, namedHandler{name: ht.Name, handler: h})
	}

	r.bus.Subscribe(r.adapterKey, func(msg *bus.OutboundMessage) {
		if err := r.adapter.Send(context.Background(), msg); err != nil {
			r.logger.Error("send failed", "adapter", r.adapterKey, "trace_id", msg.TraceID, "error", err)
		}
	})
	return r, nil
}

// ID returns the instance ID assigned at construction.
func (r *Robot) ID() string { return r.id }

// Name returns robot.name.
func (r *Robot) Name() string { return r.config.Robot.Name }

// Config returns the robot's own configuration.
func (r *Robot) Config() *config.RobotConfig { return r.config }

// Auth returns the robot's authorization service.
func (r *Robot) Auth() *auth.Service { return r.auth }

// Users returns the directory of users seen by the robot.
func (r *Robot) Users() *auth.Directory { return r.users }

// Store returns the namespace private to this robot.
func (r *Robot) Store() kv.Store { return r.store }

func (r *Robot) Bus() *bus.MessageBus { return r.bus }

func (r *Robot) Logger() *slog.Logger { return r.logger }

// Adapter returns the adapter key the robot runs on.
func (r *Robot) Adapter() string { return r.adapterKey }

// Send publishes an outbound message through the robot's adapter.
func (r *Robot) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if msg.Adapter == "" {
		msg.Adapter = r.adapterKey
	}
	return r.bus.PublishOutbound(ctx, msg)
}

// Run connects the adapter and dispatches inbound messages to the handlers.
// It blocks until ctx is cancelled, returning nil, or until the adapter
// stops, returning the adapter's error. Messages already received when the
// adapter stops on its own are still handled.
func (r *Robot) Run(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.logger.Info("robot starting", "adapter", r.adapterKey, "handlers", len(r.handlers))

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	var dispatchWG sync.WaitGroup
	dispatchWG.Add(1)
	go func() {
		defer dispatchWG.Done()
		r.bus.DispatchOutbound(dispatchCtx)
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	adapterDone := make(chan error, 1)
	go func() {
		err := r.adapter.Run(ctx)
		stopLoop()
		adapterDone <- err
	}()

	for {
		msg, err := r.bus.ConsumeInbound(loopCtx)
		if err != nil {
			break
		}
		r.dispatch(ctx, msg)
	}
	runErr := <-adapterDone

	if ctx.Err() == nil {
		for r.bus.InboundSize() > 0 {
			msg, err := r.bus.ConsumeInbound(ctx)
			if err != nil {
				break
			}
			r.dispatch(ctx, msg)
		}
	}

	stopDispatch()
	dispatchWG.Wait()
	r.bus.FlushOutbound()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := r.adapter.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		r.logger.Warn("adapter shutdown failed", "adapter", r.adapterKey, "error", shutdownErr)
	}

	if ctx.Err() != nil {
		r.logger.Info("robot stopped", "reason", "context cancelled")
		return nil
	}
	if runErr != nil {
		r.logger.Error("adapter stopped", "adapter", r.adapterKey, "error", runErr)
		return fmt.Errorf("adapter %s: %w", r.adapterKey, runErr)
	}
	r.logger.Info("robot stopped", "reason", "adapter finished")
	return shutdownErr
}

func (r *Robot) dispatch(ctx context.Context, msg *bus.InboundMessage) {
	if msg.Adapter == "" {
		msg.Adapter = r.adapterKey
	}
	if msg.UserID != "" {
		if err := r.users.Save(ctx, &auth.User{ID: msg.UserID, Name: msg.UserName}); err != nil {
			r.logger.Warn("failed to record user", "user_id", msg.UserID, "error", err)
		}
	}
	for _, h := range r.handlers {
		d, err := r.policy.Evaluate(ctx, policy.Context{
			UserID:   msg.UserID,
			UserName: msg.UserName,
			Adapter:  msg.Adapter,
			Handler:  h.name,
			TraceID:  msg.TraceID,
		})
		if err != nil {
			r.logger.Error("policy check failed", "handler", h.name, "trace_id", msg.TraceID, "error", err)
			continue
		}
		if !d.Allow {
			r.logger.Debug("handler restricted", "handler", h.name, "user_id", msg.UserID, "reason", d.Reason)
			continue
		}
		if err := h.handler.Handle(ctx, msg); err != nil {
			r.logger.Error("handler failed", "handler", h.name, "trace_id", msg.TraceID, "error", err)
		}
	}
}

// Close releases the audit publisher. The store belongs to the caller.
func (r *Robot) Close() error {
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}
