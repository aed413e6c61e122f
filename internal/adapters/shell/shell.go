// Package shell provides the default adapter: a chat over the terminal.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/KafClaw/robotd/internal/bus"
	"github.com/KafClaw/robotd/internal/plugin"
)

// Key is the adapter key the shell adapter registers under.
const Key = "shell"

// The shell has a single, fixed user.
const (
	UserID   = "1"
	UserName = "Shell User"
	RoomID   = "shell"
)

// Config is the "adapters.shell" section.
type Config struct {
	Prompt string `json:"prompt"`
}

// Adapter reads lines from an input stream and writes replies to an output
// stream.
type Adapter struct {
	env    plugin.Env
	src    *lineSource
	out    io.Writer
	prompt string

	mu sync.Mutex
}

// lineSource is the single reader of an input stream. Robots run one after
// another on the same stream share it, so a line read ahead by one robot's
// scanner is delivered to the next robot instead of being dropped.
type lineSource struct {
	in    io.Reader
	once  sync.Once
	lines chan string
	done  chan struct{}
	err   error
}

func newLineSource(in io.Reader) *lineSource {
	return &lineSource{in: in, lines: make(chan string), done: make(chan struct{})}
}

// start launches the reader goroutine on first use. It lives until the
// stream ends.
func (s *lineSource) start() {
	s.once.Do(func() {
		go func() {
			scanner := bufio.NewScanner(s.in)
			for scanner.Scan() {
				s.lines <- scanner.Text()
			}
			s.err = scanner.Err()
			close(s.done)
		}()
	})
}

// Type returns an adapter type bound to the given streams. Every adapter it
// builds reads from the same line source.
func Type(in io.Reader, out io.Writer) *plugin.AdapterType {
	src := newLineSource(in)
	return &plugin.AdapterType{
		Name: "Shell",
		New: func(env plugin.Env) (plugin.Adapter, error) {
			return newAdapter(env, src, out)
		},
	}
}

// Default is the shell adapter on stdin and stdout.
var Default = Type(os.Stdin, os.Stdout)

// Register adds the stdin/stdout shell adapter to r.
func Register(r *plugin.Registry) {
	r.RegisterAdapter(Key, Default)
}

// New builds a shell adapter for env with its own reader of in.
func New(env plugin.Env, in io.Reader, out io.Writer) (*Adapter, error) {
	return newAdapter(env, newLineSource(in), out)
}

func newAdapter(env plugin.Env, src *lineSource, out io.Writer) (*Adapter, error) {
	var cfg Config
	if err := env.Config().AdapterSection(Key, &cfg); err != nil {
		return nil, err
	}
	return &Adapter{env: env, src: src, out: out, prompt: cfg.Prompt}, nil
}

// Run publishes every non-empty input line as a private message from the
// shell user. It returns nil on EOF or on "exit"/"quit", and ctx.Err() when
// ctx is done first. Lines not yet taken stay with the line source.
func (a *Adapter) Run(ctx context.Context) error {
	a.src.start()
	a.showPrompt()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.src.done:
			return a.src.err
		case line := <-a.src.lines:
			text := strings.TrimSpace(line)
			switch strings.ToLower(text) {
			case "":
				a.showPrompt()
				continue
			case "exit", "quit":
				return nil
			}
			err := a.env.Bus().PublishInbound(ctx, &bus.InboundMessage{
				Adapter:  Key,
				UserID:   UserID,
				UserName: UserName,
				RoomID:   RoomID,
				Content:  text,
				Metadata: map[string]any{bus.MetaKeyPrivate: true},
			})
			if err != nil {
				return err
			}
			a.showPrompt()
		}
	}
}

// Send writes the message content to the output stream.
func (a *Adapter) Send(_ context.Context, msg *bus.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintln(a.out, msg.Content)
	return err
}

// Shutdown is a no-op; the streams belong to the caller.
func (a *Adapter) Shutdown(context.Context) error {
	a.env.Logger().Debug("shell adapter shut down")
	return nil
}

func (a *Adapter) showPrompt() {
	if a.prompt == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprint(a.out, a.prompt)
}
