// Package plugin defines the adapter and handler plugin types and the
// registry they are loaded into.
package plugin

import (
	"context"
	"log/slog"

	"github.com/KafClaw/robotd/internal/auth"
	"github.com/KafClaw/robotd/internal/bus"
	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
)

// Env is what a robot exposes to the plugins it instantiates.
type Env interface {
	// Name returns the robot name.
	Name() string
	Config() *config.RobotConfig
	Auth() *auth.Service
	Users() *auth.Directory
	// Store returns the key-value namespace private to this robot.
	Store() kv.Store
	Bus() *bus.MessageBus
	Logger() *slog.Logger
}

// Adapter connects a robot to a chat platform.
type Adapter interface {
	// Run publishes inbound messages to the bus until ctx is done or the
	// connection fails. It blocks for the lifetime of the connection.
	Run(ctx context.Context) error
	// Send delivers an outbound message.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
	// Shutdown releases the connection.
	Shutdown(ctx context.Context) error
}

// Handler reacts to inbound messages.
type Handler interface {
	Handle(ctx context.Context, msg *bus.InboundMessage) error
}

// AdapterType describes a registrable adapter. Registries compare adapter
// types by pointer.
type AdapterType struct {
	Name string
	New  func(env Env) (Adapter, error)
}

// HandlerType describes a registrable handler. Registries compare handler
// types by pointer.
type HandlerType struct {
	Name string
	New  func(env Env) (Handler, error)
}
