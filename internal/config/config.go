package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Storage  StorageConfig
	Gateway  GatewayConfig
	Pipeline PipelineConfig
	Browser  BrowserConfig
	Server   ServerConfig
	Export   ExportConfig
	Debug    bool
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type        string // "sqlite", "memory", "dynamodb", "mongodb", "postgresql", "redis"
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
	MongoDBURI  string
	MongoDBName string
	PostgresURI string
	SQLitePath  string
	RedisURL    string
}

// GatewayConfig holds LLM provider configuration
type GatewayConfig struct {
	Provider    string // "local" or "cloud"
	LocalURL    string
	LocalModel  string
	CloudURL    string
	CloudModel  string
	CloudAPIKey string
	CallTimeout time.Duration
	NumCtx      int
}

// PipelineConfig holds the session timing configuration
type PipelineConfig struct {
	ScanInterval      time.Duration
	LimitInterval     time.Duration
	MetricsInterval   time.Duration
	BatchCooldown     time.Duration
	ProbeAttempts     int
	ProbeInterval     time.Duration
	InitialBatchWidth int
}

// BrowserConfig holds page driver configuration
type BrowserConfig struct {
	FeedURL         string
	CookiesPath     string
	Headless        bool
	AdvanceWait     time.Duration
	StuckAttempts   int
	ExtractTimeout  time.Duration
	ReloadTimeout   time.Duration
	ProbeTimeout    time.Duration
	NavigateTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// ExportConfig holds export-related configuration
type ExportConfig struct {
	ClientAllowList []string
	ClientBlockList []string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "sqlite"),
			Region:      getEnv("AWS_REGION", "us-west-2"),
			TableName:   getEnv("TABLE_NAME", "collector_state"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			MongoDBName: getEnv("MONGODB_DATABASE", "collector"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			SQLitePath:  getEnv("SQLITE_PATH", "collector.db"),
			RedisURL:    getEnv("REDIS_URL", ""),
		},
		Gateway: GatewayConfig{
			Provider:    getEnv("AI_PROVIDER", string(models.ProviderLocal)),
			LocalURL:    getEnv("LOCAL_LLM_URL", "http://localhost:11434"),
			LocalModel:  getEnv("LOCAL_LLM_MODEL", "llama3.2"),
			CloudURL:    getEnv("CLOUD_LLM_URL", "https://api.groq.com/openai/v1/chat/completions"),
			CloudModel:  getEnv("CLOUD_LLM_MODEL", "llama-3.3-70b-versatile"),
			CloudAPIKey: getEnv("CLOUD_LLM_API_KEY", ""),
			CallTimeout: getEnvDuration("GATEWAY_CALL_TIMEOUT", 60*time.Second),
			NumCtx:      getEnvInt("LOCAL_LLM_NUM_CTX", 4096),
		},
		Pipeline: PipelineConfig{
			ScanInterval:      getEnvDuration("SCAN_INTERVAL", 5*time.Second),
			LimitInterval:     getEnvDuration("LIMIT_CHECK_INTERVAL", time.Second),
			MetricsInterval:   getEnvDuration("METRICS_INTERVAL", 500*time.Millisecond),
			BatchCooldown:     getEnvDuration("BATCH_COOLDOWN", 500*time.Millisecond),
			ProbeAttempts:     getEnvInt("REFRESH_PROBE_ATTEMPTS", 20),
			ProbeInterval:     getEnvDuration("REFRESH_PROBE_INTERVAL", 1500*time.Millisecond),
			InitialBatchWidth: getEnvInt("INITIAL_BATCH_WIDTH", 3),
		},
		Browser: BrowserConfig{
			FeedURL:         getEnv("FEED_URL", "https://www.linkedin.com/feed/"),
			CookiesPath:     getEnv("COOKIES_PATH", ".cookies/cookies.json"),
			Headless:        getEnvBool("HEADLESS", true),
			AdvanceWait:     getEnvDuration("ADVANCE_WAIT", 2*time.Second),
			StuckAttempts:   getEnvInt("STUCK_ATTEMPTS", 3),
			ExtractTimeout:  getEnvDuration("EXTRACT_TIMEOUT", 30*time.Second),
			ReloadTimeout:   getEnvDuration("RELOAD_TIMEOUT", 120*time.Second),
			ProbeTimeout:    getEnvDuration("PROBE_TIMEOUT", 3*time.Second),
			NavigateTimeout: getEnvDuration("NAVIGATE_TIMEOUT", 60*time.Second),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Export: ExportConfig{
			ClientAllowList: getEnvList("CLIENT_ALLOW_LIST"),
			ClientBlockList: getEnvList("CLIENT_BLOCK_LIST"),
		},
		Debug: getEnvBool("DEBUG", false),
	}

	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid SERVER_PORT: %d", cfg.Server.Port)
	}

	// Tick intervals must be positive
	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"SCAN_INTERVAL", cfg.Pipeline.ScanInterval},
		{"LIMIT_CHECK_INTERVAL", cfg.Pipeline.LimitInterval},
		{"METRICS_INTERVAL", cfg.Pipeline.MetricsInterval},
	}
	for _, interval := range intervals {
		if interval.value <= 0 {
			return nil, fmt.Errorf("invalid %s: %s", interval.name, interval.value)
		}
	}

	return cfg, nil
}

// SettingsFile mirrors the YAML settings file used to seed durable state
type SettingsFile struct {
	Settings       *models.Settings          `yaml:"settings"`
	Provider       *models.ProviderSelection `yaml:"provider"`
	PromptTemplate string                    `yaml:"prompt_template"`
}

// LoadSettingsFile reads a YAML settings file
func LoadSettingsFile(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var file SettingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if file.Provider != nil {
		switch file.Provider.Kind {
		case models.ProviderLocal, models.ProviderCloud:
		default:
			return nil, fmt.Errorf("invalid provider kind %q", file.Provider.Kind)
		}
	}

	return &file, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
