package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"MediDiag/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPending is returned by Submit while a reply is outstanding
	ErrPending = errors.New("a message is already being sent")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("chat session is closed")

	errEmptyReply = errors.New("empty reply from generation service")
)

// ValidationError reports a submission rejected before any state change
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// Sender delivers one prompt to the generation service and returns its reply
type Sender interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Listener receives a snapshot after every state change
type Listener func(session.State)

// Options configures a Controller
type Options struct {
	Greeting    string // Seeded as the first assistant message; empty means none
	ErrorNotice string // Assistant message appended when a send fails
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// Controller owns the state of one conversation. It is Idle or Pending;
// Submit moves it to Pending and the settlement of the send moves it back.
type Controller struct {
	sender      Sender
	errorNotice string
	logger      *slog.Logger
	tracer      trace.Tracer
	submissions metric.Int64Counter
	failures    metric.Int64Counter

	mu        sync.Mutex
	log       session.Log
	pending   bool
	lastError string
	closed    bool
	listeners map[int]Listener
	nextID    int

	// notifyMu is taken before mu is released, so listeners observe
	// snapshots in mutation order.
	notifyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Controller in the Idle state
func New(sender Sender, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		sender:      sender,
		errorNotice: opts.ErrorNotice,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		listeners:   make(map[int]Listener),
		ctx:         ctx,
		cancel:      cancel,
	}
	if c.errorNotice == "" {
		c.errorNotice = "Failed to send message. Please try again."
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("chatbot")
	}

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("chatbot")
	}
	var err error
	c.submissions, err = meter.Int64Counter("chat.submissions",
		metric.WithDescription("Messages accepted for sending"))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", "chat.submissions", "error", err)
	}
	c.failures, err = meter.Int64Counter("chat.failures",
		metric.WithDescription("Sends that ended in an error notice"))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", "chat.failures", "error", err)
	}

	if opts.Greeting != "" {
		c.log.Append(session.NewMessage(session.RoleAssistant, opts.Greeting))
	}

	c.logger.Info("created chat session", "greeting", opts.Greeting != "")
	return c
}

// Snapshot returns the current state
func (c *Controller) Snapshot() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() session.State {
	return session.State{
		Messages:  c.log.Messages(),
		Pending:   c.pending,
		LastError: c.lastError,
	}
}

// Subscribe registers fn for state changes and returns a function removing it.
// fn runs on the goroutine that changed the state and must not call back
// into the Controller synchronously.
func (c *Controller) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Submit sends text as a user message. Blank text, a pending send or a
// closed controller reject the call without changing state.
func (c *Controller) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Reason: "message is empty"}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.pending {
		c.mu.Unlock()
		c.logger.Debug("submission rejected, reply pending")
		return ErrPending
	}

	c.log.Append(session.NewMessage(session.RoleUser, text))
	c.lastError = ""
	c.pending = true
	c.wg.Add(1)
	ctx := c.ctx
	c.notifyAndUnlock()

	if c.submissions != nil {
		c.submissions.Add(ctx, 1)
	}
	c.logger.Info("message submitted", "length", len(text))

	go c.send(ctx, text)
	return nil
}

func (c *Controller) send(ctx context.Context, text string) {
	defer c.wg.Done()

	ctx, span := c.tracer.Start(ctx, "chatbot.submit",
		trace.WithAttributes(attribute.Int("message.length", len(text))))
	defer span.End()

	reply, err := c.sender.Send(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.settle(ctx, reply, err)
}

// settle applies the outcome of a send unless the session was closed meanwhile
func (c *Controller) settle(ctx context.Context, reply string, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("discarding reply for closed session", "error", err)
		return
	}

	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyReply
	}
	if err != nil {
		c.log.Append(session.NewMessage(session.RoleAssistant, c.errorNotice))
		c.lastError = err.Error()
		if c.failures != nil {
			c.failures.Add(ctx, 1)
		}
		c.logger.Error("failed to send message", "error", err)
	} else {
		c.log.Append(session.NewMessage(session.RoleAssistant, reply))
		c.logger.Info("reply received", "length", len(reply))
	}
	c.pending = false
	c.notifyAndUnlock()
}

// notifyAndUnlock releases mu and delivers the current snapshot to listeners.
// Must be called with mu held.
func (c *Controller) notifyAndUnlock() {
	snap := c.snapshotLocked()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Close tears the session down. An outstanding send is canceled and its
// result discarded. Close waits for the send goroutine to return, so it
// must not be called from a Listener.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = make(map[int]Listener)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Info("chat session closed")
}
