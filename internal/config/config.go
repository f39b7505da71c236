package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	App       AppConfig
	API       APIConfig
	Upload    UploadConfig
	Workflow  WorkflowConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	SessionTTL         time.Duration
	EventTopic         string
}

// APIConfig locates the RAG backend
type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration
	ChatTimeout time.Duration
}

type UploadConfig struct {
	MaxSize           int
	AcceptedTypes     []string
	AcceptedMimeTypes []string
}

type WorkflowConfig struct {
	DefaultChunkSize    int
	DefaultChunkOverlap int
	DefaultTopK         int
}

type TelemetryConfig struct {
	OtelEnabled  bool
	OtelEndpoint string
}

// apiDefaults are the per-environment backend settings used when the
// environment does not override them.
var apiDefaults = map[string]struct {
	baseURL   string
	timeoutMs int
}{
	EnvDevelopment: {baseURL: "http://localhost:8002/api", timeoutMs: 30000},
	EnvProduction:  {baseURL: "https://your-production-domain.com/api", timeoutMs: 60000},
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	env := getEnv("GO_ENV", EnvDevelopment)
	defaults, ok := apiDefaults[env]
	if !ok {
		defaults = apiDefaults[EnvDevelopment]
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        env,
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/notification.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			SessionTTL:         time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
			EventTopic:         getEnv("EVENT_TOPIC_NAME", "SESSION_EVENTS"),
		},
		API: APIConfig{
			BaseURL:     getEnv("RAG_API_BASE_URL", defaults.baseURL),
			Timeout:     time.Duration(getEnvAsInt("RAG_API_TIMEOUT_MS", defaults.timeoutMs)) * time.Millisecond,
			ChatTimeout: time.Duration(getEnvAsInt("RAG_CHAT_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Upload: UploadConfig{
			MaxSize:           getEnvAsInt("UPLOAD_MAX_SIZE", 10*1024*1024), // 10MB
			AcceptedTypes:     getEnvAsList("UPLOAD_ACCEPTED_TYPES", []string{".md"}),
			AcceptedMimeTypes: getEnvAsList("UPLOAD_ACCEPTED_MIME_TYPES", []string{"text/markdown"}),
		},
		Workflow: WorkflowConfig{
			DefaultChunkSize:    getEnvAsInt("DEFAULT_CHUNK_SIZE", 2048),
			DefaultChunkOverlap: getEnvAsInt("DEFAULT_CHUNK_OVERLAP", 100),
			DefaultTopK:         getEnvAsInt("DEFAULT_TOP_K", 3),
		},
		Telemetry: TelemetryConfig{
			OtelEnabled:  getEnv("OTEL_ENABLED", "false") == "true",
			OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, fallback []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
