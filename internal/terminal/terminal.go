package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"MediDiag/internal/chatbot"
	"MediDiag/internal/session"

	"github.com/gookit/color"
)

// Controller is the part of chatbot.Controller the terminal drives
type Controller interface {
	Snapshot() session.State
	Subscribe(fn chatbot.Listener) func()
	Submit(text string) error
	Close()
}

// Terminal renders a chat session on a line-oriented terminal
type Terminal struct {
	ctrl   Controller
	in     io.Reader
	out    io.Writer
	title  string
	logger *slog.Logger

	mu      sync.Mutex
	printed int // messages of the log already rendered
	idle    chan struct{}
}

// New creates a Terminal reading from in and writing to out
func New(ctrl Controller, in io.Reader, out io.Writer, title string) *Terminal {
	return &Terminal{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		title:  title,
		logger: slog.Default(),
		idle:   make(chan struct{}, 1),
	}
}

// render prints messages appended since the previous call.
// User messages are only counted, their text is already on screen.
// Snapshots arrive in mutation order, so "Sending..." always precedes the reply.
func (t *Terminal) render(state session.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range state.Messages[min(t.printed, len(state.Messages)):] {
		if msg.Role == session.RoleAssistant {
			fmt.Fprintf(t.out, "%s %s\n\n", color.Green.Sprint("Bot:"), msg.Content)
		}
	}
	t.printed = len(state.Messages)

	if state.Pending {
		fmt.Fprintln(t.out, color.Gray.Sprint("Sending..."))
	}
	if !state.Pending && state.LastError != "" {
		fmt.Fprintln(t.out, color.Red.Sprintf("Error: %s", state.LastError))
	}
}

func (t *Terminal) history() {
	state := t.ctrl.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range state.Messages {
		who := color.Cyan.Sprint("You")
		if msg.Role == session.RoleAssistant {
			who = color.Green.Sprint("Bot")
		}
		fmt.Fprintf(t.out, "[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), who, msg.Content)
	}
}

// handleCommand handles special commands
func (t *Terminal) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/history":
		t.history()
		return false

	case "/help":
		fmt.Fprintln(t.out, "Available commands:")
		fmt.Fprintln(t.out, "  /quit, /exit        - Exit the chat")
		fmt.Fprintln(t.out, "  /history            - Show the conversation so far")
		fmt.Fprintln(t.out, "  /help               - Show this help message")
		return false

	default:
		fmt.Fprintf(t.out, "Unknown command: %s (type /help)\n", parts[0])
		return false
	}
}

// waitIdle blocks until the controller settles the current send
func (t *Terminal) waitIdle(ctx context.Context) error {
	select {
	case <-t.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the chat loop. It returns on EOF, /quit or ctx cancellation
// and closes the controller.
func (t *Terminal) Run(ctx context.Context) error {
	defer t.ctrl.Close()

	unsubscribe := t.ctrl.Subscribe(func(s session.State) {
		t.render(s)
		if !s.Pending {
			select {
			case t.idle <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	fmt.Fprintln(t.out, color.Bold.Sprintf("=== %s ===", t.title))
	fmt.Fprintln(t.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(t.out)
	t.render(t.ctrl.Snapshot())

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		fmt.Fprint(t.out, color.Cyan.Sprint("You: "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(t.out)
				fmt.Fprintln(t.out, "Goodbye!")
				return <-scanErr
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if t.handleCommand(input) {
				fmt.Fprintln(t.out, "Goodbye!")
				return nil
			}
			continue
		}

		if err := t.ctrl.Submit(input); err != nil {
			var verr *chatbot.ValidationError
			if !errors.As(err, &verr) {
				fmt.Fprintf(t.out, "Error: %v\n", err)
			}
			t.logger.Warn("submission rejected", "error", err)
			continue
		}

		if err := t.waitIdle(ctx); err != nil {
			fmt.Fprintln(t.out)
			return nil
		}
	}
}
