package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 512

// ChatRequest is the body posted to the generation endpoint
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by the generation endpoint
type ChatResponse struct {
	Response *string `json:"response"`
}

// TransportError is returned for every failure of Send
type TransportError struct {
	Op         string // request, send, status, read, decode
	StatusCode int    // set when Op is "status"
	Body       string // truncated response body for status errors
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transport %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
	default:
		return "transport " + e.Op + " failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Config configures a Client
type Config struct {
	Endpoint   string       // Full URL of the generation endpoint
	HTTPClient *http.Client // Defaults to a client without timeout
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client posts prompts to a fixed generation endpoint.
// It does not retry, cache or coalesce requests.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	failures   metric.Int64Counter
}

// NewClient creates a new Client for cfg.Endpoint
func NewClient(cfg Config) *Client {
	c := &Client{
		endpoint:   cfg.Endpoint,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("transport")
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("transport")
	}
	var err error
	c.duration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		c.logger.Warn("failed to create histogram", "error", err)
	}
	c.failures, err = meter.Int64Counter(
		"transport.failures",
		metric.WithDescription("Failed calls to the generation endpoint"),
	)
	if err != nil {
		c.logger.Warn("failed to create counter", "error", err)
	}

	return c
}

// Endpoint returns the URL the client posts to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts prompt to the endpoint and returns the reply text.
// Every failure is a *TransportError.
func (c *Client) Send(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "transport.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", c.endpoint)),
	)
	defer span.End()

	start := time.Now()
	reply, err := c.send(ctx, prompt)

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.failures != nil {
			c.failures.Add(ctx, 1)
		}
		c.logger.Warn("generation request failed", "endpoint", c.endpoint, "error", err)
		return "", err
	}

	c.logger.Debug("generation request completed",
		"endpoint", c.endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_length", len(reply))
	return reply, nil
}

func (c *Client) send(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(ChatRequest{Message: prompt})
	if err != nil {
		return "", &TransportError{Op: "request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &TransportError{Op: "request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "send", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &TransportError{Op: "status", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &TransportError{Op: "decode", Cause: err}
	}
	if apiResp.Response == nil {
		return "", &TransportError{Op: "decode", Cause: fmt.Errorf("response field missing")}
	}
	if strings.TrimSpace(*apiResp.Response) == "" {
		return "", &TransportError{Op: "decode", Cause: fmt.Errorf("response is empty")}
	}

	return *apiResp.Response, nil
}
