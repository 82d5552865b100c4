package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Publisher delivers events to the host. eventbus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Options configures a Conductor.
type Options struct {
	// Binary is the CLI executable, resolved through PATH when not absolute.
	// Defaults to "claude".
	Binary string
	// DefaultModel is passed as --model when a start request names none.
	DefaultModel string
	Logger       *slog.Logger
}

// Conductor is the command surface over the registry and the runners.
type Conductor struct {
	sessions     *Registry
	bus          Publisher
	logger       *slog.Logger
	binary       string
	defaultModel string

	mu      sync.Mutex
	closed  bool
	runners sync.WaitGroup
}

// New returns a Conductor that publishes every event to bus on EventTopic.
func New(bus Publisher, opts Options) *Conductor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}
	return &Conductor{
		sessions:     NewRegistry(logger),
		bus:          bus,
		logger:       logger,
		binary:       binary,
		defaultModel: opts.DefaultModel,
	}
}

// Start validates the request and launches a session in the background. Once
// dispatched, failures are reported as error events rather than returned.
func (c *Conductor) Start(opts StartOptions) error {
	opts.AgentID = resolveAgentID(opts.AgentID)
	if strings.TrimSpace(opts.Prompt) == "" {
		return ErrPromptRequired
	}
	if opts.ProjectPath != "" {
		info, err := os.Stat(opts.ProjectPath)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrInvalidProjectPath, opts.ProjectPath)
		}
	}
	if opts.Model == "" {
		opts.Model = c.defaultModel
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShuttingDown
	}
	c.runners.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.runners.Done()
		if err := c.run(opts); err != nil {
			c.logger.Error("claude session failed", "agent_id", opts.AgentID, "error", err)
			c.publish(ErrorEvent{AgentID: opts.AgentID, Message: err.Error()})
		}
	}()
	return nil
}

// Send writes a follow-up prompt to a running session. The stdin pipe is
// always handed back to the registry, whether or not the write succeeded.
// The session is marked thinking before the write so a fast turnComplete is
// not overwritten; a failed write restores the previous status.
func (c *Conductor) Send(opts SendOptions) error {
	agentID := resolveAgentID(opts.AgentID)

	stdin, ok := c.sessions.TakeStdin(agentID)
	if !ok {
		return ErrNoActiveSession
	}
	prev, _ := c.sessions.Status(agentID)
	c.sessions.SetStatus(agentID, StatusThinking)

	err := writePrompt(stdin, opts.Prompt)
	if err != nil {
		c.sessions.SetStatus(agentID, prev)
	}
	c.sessions.ReturnStdin(agentID, stdin)
	if err != nil {
		return fmt.Errorf("Failed to send message: %w", err)
	}
	return nil
}

// Stop kills the agent's child. The runner then observes EOF and publishes
// processExited.
func (c *Conductor) Stop(agentID string) {
	c.sessions.Kill(resolveAgentID(agentID))
}

// HasActive reports whether the agent has a live session that can accept a
// send.
func (c *Conductor) HasActive(agentID string) bool {
	return c.sessions.IsAlive(resolveAgentID(agentID))
}

// Status returns the agent's session status and whether a session exists.
func (c *Conductor) Status(agentID string) (Status, bool) {
	return c.sessions.Status(resolveAgentID(agentID))
}

// Sessions lists the live sessions ordered by agent ID.
func (c *Conductor) Sessions() []SessionInfo {
	return c.sessions.List()
}

// Shutdown kills every child and waits for the runners to finish or ctx to
// end. Later starts fail with ErrShuttingDown.
func (c *Conductor) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.sessions.Close()

	done := make(chan struct{})
	go func() {
		c.runners.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conductor) publish(ev Event) {
	if err := c.bus.Publish(context.Background(), EventTopic, ev); err != nil {
		c.logger.Warn("failed to publish event", "agent_id", ev.Agent(), "type", ev.Type(), "error", err)
	}
}
