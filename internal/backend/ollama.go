package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// OllamaConfig configures the Ollama generator
type OllamaConfig struct {
	URL          string // Base URL, e.g. http://localhost:11434
	Model        string // Model specification in format "model:version"
	SystemPrompt string
	HTTPClient   *http.Client
}

type ollamaClient struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllama creates a Generator backed by a local Ollama server
func NewOllama(cfg OllamaConfig) Generator {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ollamaClient{cfg: cfg, httpClient: httpClient}
}

func (c *ollamaClient) Name() string {
	return "ollama/" + c.cfg.Model
}

func (c *ollamaClient) Generate(ctx context.Context, message string) (string, error) {
	reqMessages := []map[string]string{}
	if c.cfg.SystemPrompt != "" {
		reqMessages = append(reqMessages, map[string]string{"role": "system", "content": c.cfg.SystemPrompt})
	}
	reqMessages = append(reqMessages, map[string]string{"role": "user", "content": message})

	jsonData, err := json.Marshal(OllamaRequest{
		Model:    c.cfg.Model,
		Messages: reqMessages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.URL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Message.Content == "" {
		return "No content returned.", nil
	}
	return apiResp.Message.Content, nil
}
