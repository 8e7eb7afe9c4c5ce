package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MediDiag/internal/chatbot"
	"MediDiag/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeting = "Hello! I am MediDiag AI. How can I help with your medical concerns today?"

func init() {
	gin.SetMode(gin.TestMode)
}

type senderFunc func(ctx context.Context, prompt string) (string, error)

func (f senderFunc) Send(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type frame struct {
	Type      string        `json:"type"`
	Messages  []messageView `json:"messages"`
	Pending   bool          `json:"pending"`
	LastError string        `json:"lastError"`
	Reason    string        `json:"reason"`
}

func dial(t *testing.T, sender chatbot.Sender) *websocket.Conn {
	t.Helper()
	srv := NewServer(Config{
		Sender:  sender,
		Session: chatbot.Options{Greeting: greeting, ErrorNotice: "Failed to send message. Please try again."},
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil reads frames until an idle state with n messages arrives
func readUntil(t *testing.T, conn *websocket.Conn, n int) frame {
	t.Helper()
	for {
		f := read(t, conn)
		if f.Type == "state" && !f.Pending && len(f.Messages) == n {
			return f
		}
	}
}

func TestIndex_ServesPage(t *testing.T) {
	router := NewServer(Config{}).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "MediDiag AI")
	// The error line shows the transport detail, the notice is already in the log
	require.Contains(t, w.Body.String(), "state.lastError ? \"Error: \" + state.lastError")
	require.NotContains(t, w.Body.String(), "Failed to send message")
}

func TestHealthz(t *testing.T) {
	router := NewServer(Config{}).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWS_GreetingThenReply(t *testing.T) {
	conn := dial(t, senderFunc(func(_ context.Context, prompt string) (string, error) {
		return "Please describe onset and duration.", nil
	}))

	first := read(t, conn)
	require.Equal(t, "state", first.Type)
	require.False(t, first.Pending)
	require.Len(t, first.Messages, 1)
	require.Equal(t, greeting, first.Messages[0].Content)
	require.Equal(t, "assistant", first.Messages[0].Role)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "I have a headache"}))

	last := readUntil(t, conn, 3)
	require.Equal(t, "user", last.Messages[1].Role)
	require.Equal(t, "I have a headache", last.Messages[1].Content)
	require.Equal(t, "assistant", last.Messages[2].Role)
	require.Equal(t, "Please describe onset and duration.", last.Messages[2].Content)
	require.Empty(t, last.LastError)

	_, err := time.Parse(time.RFC3339Nano, last.Messages[2].Timestamp)
	require.NoError(t, err)
}

func TestWS_FailureShowsNotice(t *testing.T) {
	conn := dial(t, senderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}))
	read(t, conn)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "I have a headache"}))

	last := readUntil(t, conn, 3)
	require.Equal(t, "Failed to send message. Please try again.", last.Messages[2].Content)
	require.Equal(t, "connection refused", last.LastError)
}

func TestWS_BlankAndUnknownAreRejected(t *testing.T) {
	conn := dial(t, senderFunc(func(context.Context, string) (string, error) {
		return "unused", nil
	}))
	read(t, conn)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "   "}))
	f := read(t, conn)
	require.Equal(t, "rejected", f.Type)
	require.Contains(t, f.Reason, "empty")

	raw, err := json.Marshal(map[string]string{"type": "reset"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	f = read(t, conn)
	require.Equal(t, "rejected", f.Type)
	require.Contains(t, f.Reason, "unknown message type")
}

func TestWS_DisconnectTearsDownSession(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	conn := dial(t, senderFunc(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		close(canceled)
		return "", ctx.Err()
	}))
	read(t, conn)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "I have a headache"}))
	<-started
	require.NoError(t, conn.Close())

	select {
	case <-canceled:
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight send was not canceled after disconnect")
	}
}

func TestWS_SubmitWhilePendingIsRejected(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	conn := dial(t, senderFunc(func(ctx context.Context, _ string) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "Please describe onset and duration.", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))
	read(t, conn)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "I have a headache"}))
	<-started
	pending := read(t, conn)
	require.True(t, pending.Pending)
	require.Len(t, pending.Messages, 2)

	require.NoError(t, conn.WriteJSON(inbound{Type: "submit", Text: "hello?"}))
	f := read(t, conn)
	require.Equal(t, "rejected", f.Type)
	require.Contains(t, f.Reason, chatbot.ErrPending.Error())

	close(release)
	last := readUntil(t, conn, 3)
	require.Equal(t, "I have a headache", last.Messages[1].Content)
	require.Equal(t, "Please describe onset and duration.", last.Messages[2].Content)
}

func stateWith(n int) session.State {
	var log session.Log
	for i := 0; i < n; i++ {
		log.Append(session.NewMessage(session.RoleUser, "message"))
	}
	return session.State{Messages: log.Messages(), Pending: n%2 == 1}
}

func TestViewConn_PublishKeepsLatest(t *testing.T) {
	v := newViewConn(nil, nil, slog.Default())

	_, ok := v.take()
	require.False(t, ok)

	v.publish(stateWith(1))
	state, ok := v.take()
	require.True(t, ok)
	require.Len(t, state.Messages, 1)

	for n := 2; n <= 5; n++ {
		v.publish(stateWith(n))
	}
	require.Len(t, v.wake, 1)

	state, ok = v.take()
	require.True(t, ok)
	require.Len(t, state.Messages, 5)

	_, ok = v.take()
	require.False(t, ok)
}

func TestViewConn_SlowWriterGetsNewestState(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		v := newViewConn(conn, nil, slog.Default())

		// The writer starts only after the burst
		for n := 1; n <= 4; n++ {
			v.publish(stateWith(n))
		}
		go func() {
			time.Sleep(100 * time.Millisecond)
			v.publish(stateWith(5))
			time.Sleep(100 * time.Millisecond)
			close(v.done)
		}()
		v.writeLoop()
		conn.Close()
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	first := read(t, conn)
	require.Equal(t, "state", first.Type)
	require.Len(t, first.Messages, 4)

	second := read(t, conn)
	require.Len(t, second.Messages, 5)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestViewConn_WriteFailureStopsSession(t *testing.T) {
	srv := NewServer(Config{})
	returned := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(returned)
		conn, err := srv.upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		tcp, ok := conn.UnderlyingConn().(*net.TCPConn)
		if !assert.True(t, ok) {
			conn.Close()
			return
		}
		// Reads still work, every write fails
		assert.NoError(t, tcp.CloseWrite())

		ctrl := chatbot.New(senderFunc(func(context.Context, string) (string, error) {
			return "unused", nil
		}), chatbot.Options{Greeting: greeting})
		newViewConn(conn, ctrl, slog.Default()).run()
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-returned:
	case <-time.After(3 * time.Second):
		t.Fatal("session kept reading after its writer failed")
	}
}
