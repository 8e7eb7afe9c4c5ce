package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MediDiag/internal/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	welcome = "Welcome to the MediDiag AI API. Access /api/groq for the chatbot endpoint."

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Generator produces the reply for one user message
type Generator interface {
	Generate(ctx context.Context, message string) (string, error)
	Name() string
}

// Recorder keeps a record of handled exchanges
type Recorder interface {
	Record(ctx context.Context, ex store.Exchange) error
}

// History lists recorded exchanges. A Recorder that also implements
// History enables GET /api/exchanges.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Exchange, error)
}

// ChatRequest is the body of POST /api/groq. An empty message is valid,
// a missing one is not.
type ChatRequest struct {
	Message *string `json:"message" binding:"required"`
}

// ChatResponse is the reply of POST /api/groq
type ChatResponse struct {
	Response string `json:"response"`
}

type exchangeView struct {
	ID        int64     `json:"id"`
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
	Provider  string    `json:"provider"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Options configures the router
type Options struct {
	// ServiceName enables otelgin tracing when set
	ServiceName string
	Logger      *slog.Logger
}

type handler struct {
	gen    Generator
	rec    Recorder
	logger *slog.Logger
}

// NewRouter builds the gateway HTTP routes. rec may be nil.
func NewRouter(gen Generator, rec Recorder, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", gen.Name())

	router := gin.New()

	// OTel span first, so recovery and logging run inside it
	if opts.ServiceName != "" {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(Recovery(logger))
	router.Use(Logger(logger))

	h := &handler{gen: gen, rec: rec, logger: logger}
	router.GET("/", h.root)
	router.POST("/api/groq", h.chat)
	if hist, ok := rec.(History); ok {
		router.GET("/api/exchanges", h.exchanges(hist))
	}

	return router
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcome})
}

func (h *handler) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}
	message := *req.Message

	ctx := c.Request.Context()
	start := time.Now()
	reply, err := h.gen.Generate(ctx, message)
	latency := time.Since(start)

	h.record(ctx, store.Exchange{
		Prompt:    message,
		Reply:     reply,
		Error:     errString(err),
		Provider:  h.gen.Name(),
		LatencyMS: latency.Milliseconds(),
	})

	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Error contacting " + upstreamLabel(h.gen.Name()) + ": " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{Response: reply})
}

func (h *handler) exchanges(hist History) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid limit: " + raw})
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		recent, err := hist.Recent(c.Request.Context(), limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to load exchanges"})
			return
		}

		views := make([]exchangeView, 0, len(recent))
		for _, ex := range recent {
			views = append(views, exchangeView(ex))
		}
		c.JSON(http.StatusOK, gin.H{"exchanges": views})
	}
}

func (h *handler) record(ctx context.Context, ex store.Exchange) {
	if h.rec == nil {
		return
	}
	if err := h.rec.Record(ctx, ex); err != nil {
		h.logger.WarnContext(ctx, "failed to record exchange", "error", err)
	}
}

// upstreamLabel names the provider behind a generator name like "groq/<model>"
func upstreamLabel(name string) string {
	provider, _, _ := strings.Cut(name, "/")
	switch provider {
	case "groq":
		return "Groq API"
	case "ollama":
		return "Ollama API"
	default:
		return name
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
