package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "ideabox"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Mailbox (IMAP)
	MailboxHost        string
	MailboxPort        int
	MailboxAddress     string
	MailboxPassword    string
	MailboxFolder      string
	MailboxFetchPolicy string
	MailboxFetchLimit  int
	MailboxTimeout     time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration

	// OpenAI
	OpenAIAPIKey      string
	LLMModel          string
	LLMMaxTokens      int
	LLMTemperature    float64
	ClassifierTimeout time.Duration

	// Intake
	IntakeEnabled  bool
	IntakeInterval time.Duration

	// Persistence
	PersistBackend string
	PersistFile    string
	DatabaseURL    string
	MongoDBURL     string
	MongoDBName    string
	RedisURL       string

	// Reward
	RewardCurrency        string
	RewardFallbackAddress string

	// Worker
	WorkerID        string
	WorkerCount     int
	WorkerQueueSize int

	// CORS
	AllowedOrigins []string
}

// Persistence backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),

		// Mailbox
		MailboxHost:        getEnv("MAILBOX_HOST", ""),
		MailboxPort:        getEnvInt("MAILBOX_PORT", 993),
		MailboxAddress:     getEnv("MAILBOX_ADDRESS", ""),
		MailboxPassword:    getEnv("MAILBOX_PASSWORD", ""),
		MailboxFolder:      getEnv("MAILBOX_FOLDER", "INBOX"),
		MailboxFetchPolicy: getEnv("MAILBOX_FETCH_POLICY", "unseen"),
		MailboxFetchLimit:  getEnvInt("MAILBOX_FETCH_LIMIT", 20),
		MailboxTimeout:     time.Duration(getEnvInt("MAILBOX_TIMEOUT_SEC", 30)) * time.Second,

		// SMTP
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTimeout:  time.Duration(getEnvInt("SMTP_TIMEOUT_SEC", 15)) * time.Second,

		// OpenAI
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTemperature:    getEnvFloat("LLM_TEMPERATURE", 0.2),
		ClassifierTimeout: time.Duration(getEnvInt("CLASSIFIER_TIMEOUT_SEC", 30)) * time.Second,

		// Intake
		IntakeEnabled:  getEnvBool("INTAKE_ENABLED", true),
		IntakeInterval: time.Duration(getEnvInt("INTAKE_INTERVAL_MIN", 2)) * time.Minute,

		// Persistence
		PersistBackend: strings.ToLower(getEnv("PERSIST_BACKEND", BackendFile)),
		PersistFile:    getEnv("PERSIST_FILE", "data/submissions.json"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MongoDBURL:     getEnv("MONGODB_URL", ""),
		MongoDBName:    getEnv("MONGODB_DATABASE", "ideabox"),
		RedisURL:       getEnv("REDIS_URL", ""),

		// Reward
		RewardCurrency:        getEnv("REWARD_CURRENCY", "kr."),
		RewardFallbackAddress: getEnv("REWARD_FALLBACK_ADDRESS", "unknown@company.example"),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 32),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PersistBackend {
	case BackendFile, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("PERSIST_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendMongo:
		if c.MongoDBURL == "" {
			return fmt.Errorf("PERSIST_BACKEND=mongo requires MONGODB_URL")
		}
	default:
		return fmt.Errorf("unknown PERSIST_BACKEND %q", c.PersistBackend)
	}
	if c.IntakeInterval <= 0 {
		return fmt.Errorf("INTAKE_INTERVAL_MIN must be positive")
	}
	if c.MailboxFetchLimit <= 0 {
		return fmt.Errorf("MAILBOX_FETCH_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// MailboxConfigured reports whether intake can reach a mailbox at all.
func (c *Config) MailboxConfigured() bool {
	return c.MailboxHost != "" && c.MailboxAddress != "" && c.MailboxPassword != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
