package web

import (
	_ "embed"
	"log/slog"
	"net/http"
	"time"

	"MediDiag/internal/chatbot"
	"MediDiag/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

//go:embed static/index.html
var indexHTML []byte

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
)

// Config configures the browser client server
type Config struct {
	// Sender is shared by all sessions; each connection gets its own controller
	Sender  chatbot.Sender
	Session chatbot.Options
	Logger  *slog.Logger
}

// Server serves the chat page and one chat session per websocket connection
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new Server
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router returns the HTTP routes of the server
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", s.serveWS)

	return router
}

// inbound is a message from the browser
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messageView struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

// stateView is the snapshot pushed to the browser
type stateView struct {
	Type      string        `json:"type"`
	Messages  []messageView `json:"messages"`
	Pending   bool          `json:"pending"`
	LastError string        `json:"lastError,omitempty"`
}

type rejectedView struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func newStateView(state session.State) stateView {
	return stateView{
		Type: "state",
		Messages: lo.Map(state.Messages, func(m session.Message, _ int) messageView {
			return messageView{
				ID:        m.ID,
				Content:   m.Content,
				Role:      string(m.Role),
				Timestamp: m.Timestamp.Format(time.RFC3339Nano),
			}
		}),
		Pending:   state.Pending,
		LastError: state.LastError,
	}
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctrl := chatbot.New(s.cfg.Sender, s.cfg.Session)
	s.logger.Info("chat view mounted", "remote", c.ClientIP())

	newViewConn(conn, ctrl, s.logger).run()

	s.logger.Info("chat view unmounted", "remote", c.ClientIP())
}
