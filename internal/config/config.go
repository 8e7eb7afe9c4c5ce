package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"

	envPrefix = "MEDIDIAG"
)

const (
	DefaultGreeting     = "Hello! I am MediDiag AI. How can I help with your medical concerns today?"
	DefaultErrorNotice  = "Failed to send message. Please try again."
	DefaultSystemPrompt = "You are a medical diagnostic assistant. " +
		"Always provide concise, clear, and professional answers. " +
		"You are not a real doctor and should remind users that " +
		"they need professional medical advice for final diagnosis."
)

// Config holds chat client configuration
type Config struct {
	Endpoint    string `envconfig:"ENDPOINT" default:"http://localhost:8000/api/groq"`
	Greeting    string `envconfig:"GREETING" default:"Hello! I am MediDiag AI. How can I help with your medical concerns today?"`
	ErrorNotice string `envconfig:"ERROR_NOTICE" default:"Failed to send message. Please try again."`
	Debug       bool   `envconfig:"DEBUG"`
	Telemetry   bool   `envconfig:"TELEMETRY"`
	LogDir      string `envconfig:"LOG_DIR" default:"logs"`
	WebAddr     string `envconfig:"WEB_ADDR" default:":3000"` // Listen address of the browser client
}

// Gateway holds configuration of the generation gateway service
type Gateway struct {
	Addr      string `envconfig:"API_ADDR" default:":8000"`
	Provider  string `envconfig:"PROVIDER" default:"groq"`
	Debug     bool   `envconfig:"DEBUG"`
	Telemetry bool   `envconfig:"TELEMETRY"`
	LogDir    string `envconfig:"LOG_DIR" default:"logs"`
	DBPath    string `envconfig:"DB_PATH" default:"medidiag.db"` // Empty disables the exchange log

	GroqAPIKey   string  `envconfig:"GROQ_API_KEY"` // MEDIDIAG_GROQ_API_KEY, falls back to GROQ_API_KEY
	GroqBaseURL  string  `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1/"`
	Model        string  `envconfig:"MODEL" default:"deepseek-r1-distill-llama-70b"`
	SystemPrompt string  `envconfig:"SYSTEM_PROMPT"`
	Temperature  float64 `envconfig:"TEMPERATURE" default:"0.7"`
	MaxTokens    int     `envconfig:"MAX_TOKENS" default:"256"`

	OllamaURL   string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3:latest"`
}

// Load reads the client configuration from .env and the environment
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadGateway reads the gateway configuration from .env and the environment
func LoadGateway() (Gateway, error) {
	_ = godotenv.Load()

	var cfg Gateway
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Gateway{}, fmt.Errorf("failed to load gateway config: %w", err)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if err := cfg.Validate(); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

// Validate checks provider specific settings
func (g Gateway) Validate() error {
	switch g.Provider {
	case ProviderGroq:
		if g.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY not set")
		}
	case ProviderOllama:
		if g.OllamaURL == "" {
			return fmt.Errorf("ollama provider requires OLLAMA_URL")
		}
	default:
		return fmt.Errorf("unknown provider: %s (groq|ollama)", g.Provider)
	}
	return nil
}
