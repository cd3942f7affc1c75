// Package config provides configuration management for AnanBot.
// It loads settings from environment variables with the ANAN_ prefix,
// optionally overlaid by a YAML file, and provides sensible defaults for
// all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the bot core.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Memory   MemoryConfig   `yaml:"memory"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 8119)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains data directory and store backend configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // Fact store engine: sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Data directory (default: ./memories)
	PostgresDSN   string `yaml:"postgres_dsn"`   // DSN when storage_engine=postgres
	VaultMaxBytes int64  `yaml:"vault_max_bytes"`
}

// LLMConfig contains generative/embedding provider configuration.
type LLMConfig struct {
	Provider       string `yaml:"provider"`        // gemini, ollama, openai (default: gemini)
	GoogleAPIKey   string `yaml:"google_api_key"`
	GeminiModel    string `yaml:"gemini_model"`    // default: gemini-2.0-flash
	ImageModel     string `yaml:"image_model"`     // default: gemini-2.0-flash-exp-image-generation
	EmbeddingModel string `yaml:"embedding_model"` // default: gemini-embedding-001
	OllamaURL      string `yaml:"ollama_url"`      // default: http://localhost:11434
	OllamaModel    string `yaml:"ollama_model"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-call timeout (default: 120)
}

// AgentConfig contains the context-assembly tunables.
type AgentConfig struct {
	BotName            string `yaml:"bot_name"`             // default: Anan
	PersonaFile        string `yaml:"persona_file"`         // optional file overriding the built-in persona prompt
	HistoryMaxLen      int    `yaml:"history_max_len"`      // message ring capacity per context (default: 1000)
	ImageRingLen       int    `yaml:"image_ring_len"`       // recent-image ring capacity per context (default: 3)
	ContextWindowText  int    `yaml:"context_window_text"`  // history entries for text-only turns (default: 10)
	ContextWindowImage int    `yaml:"context_window_image"` // history entries for image-bearing turns (default: 3)
	MaxInputImages     int    `yaml:"max_input_images"`     // uploads accepted per request (default: 3)
	MaxEditImages      int    `yaml:"max_edit_images"`      // edit targets per action (default: 3)
	MaxReplyTokens     int    `yaml:"max_reply_tokens"`     // default: 512
	Workers            int    `yaml:"workers"`              // deferred-task workers (default: 2)
	QueueSize          int    `yaml:"queue_size"`           // deferred-task queue capacity (default: 64)
	Debug              bool   `yaml:"debug"`
}

// MemoryConfig contains long-term memory tunables.
type MemoryConfig struct {
	RecallCount      int     `yaml:"recall_count"`       // candidates fetched per query (default: 5)
	Threshold        float64 `yaml:"threshold"`          // cosine-distance acceptance threshold, strict (default: 0.7)
	MaxSummaryTokens int     `yaml:"max_summary_tokens"` // default: 200
	MaxMemoryTokens  int     `yaml:"max_memory_tokens"`  // default: 200
}

// SecurityConfig contains HTTP authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"security_mode"` // development, production (default: development)
	APIToken     string `yaml:"api_token"`
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	return buildBaseConfig(), nil
}

// LoadConfigFile loads configuration from environment variables, then
// overlays values from a YAML file. File values win over env values.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("ANAN_PORT", 8119),
			Host: getEnv("ANAN_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("ANAN_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("ANAN_DATA_PATH", "./memories"),
			PostgresDSN:   getEnv("ANAN_POSTGRES_DSN", ""),
			VaultMaxBytes: int64(getEnvInt("ANAN_VAULT_MAX_MB", 1024)) << 20,
		},
		LLM: LLMConfig{
			Provider:       getEnv("ANAN_LLM_PROVIDER", "gemini"),
			GoogleAPIKey:   getEnv("GOOGLE_API_KEY", ""),
			GeminiModel:    getEnv("ANAN_GEMINI_MODEL", "gemini-2.0-flash"),
			ImageModel:     getEnv("ANAN_IMAGE_MODEL", "gemini-2.0-flash-exp-image-generation"),
			EmbeddingModel: getEnv("ANAN_EMBEDDING_MODEL", "gemini-embedding-001"),
			OllamaURL:      getEnv("ANAN_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:    getEnv("ANAN_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("ANAN_OPENAI_MODEL", "gpt-4o"),
			TimeoutSeconds: getEnvInt("ANAN_LLM_TIMEOUT_SECONDS", 120),
		},
		Agent: AgentConfig{
			BotName:            getEnv("ANAN_BOT_NAME", "Anan"),
			PersonaFile:        getEnv("ANAN_PERSONA_FILE", ""),
			HistoryMaxLen:      getEnvInt("ANAN_HISTORY_MAXLEN", 1000),
			ImageRingLen:       getEnvInt("ANAN_IMAGE_RING_LEN", 3),
			ContextWindowText:  getEnvInt("ANAN_CONTEXT_WINDOW_TEXT", 10),
			ContextWindowImage: getEnvInt("ANAN_CONTEXT_WINDOW_IMAGE", 3),
			MaxInputImages:     getEnvInt("ANAN_MAX_INPUT_IMAGES", 3),
			MaxEditImages:      getEnvInt("ANAN_MAX_EDIT_IMAGES", 3),
			MaxReplyTokens:     getEnvInt("ANAN_MAX_REPLY_TOKENS", 512),
			Workers:            getEnvInt("ANAN_WORKERS", 2),
			QueueSize:          getEnvInt("ANAN_QUEUE_SIZE", 64),
			Debug:              getEnvBool("ANAN_DEBUG", false),
		},
		Memory: MemoryConfig{
			RecallCount:      getEnvInt("ANAN_MEMORY_RECALL_COUNT", 5),
			Threshold:        getEnvFloat("ANAN_MEMORY_THRESHOLD", 0.7),
			MaxSummaryTokens: getEnvInt("ANAN_MAX_SUMMARY_TOKENS", 200),
			MaxMemoryTokens:  getEnvInt("ANAN_MAX_MEMORY_TOKENS", 200),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("ANAN_SECURITY_MODE", "development"),
			APIToken:     getEnv("ANAN_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
