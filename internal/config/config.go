package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

type Config struct {
	DatabaseURL     string
	StorageBackend  string
	MongoURI        string
	MongoDatabase   string
	RedisURL        string
	HTTPAddr        string
	LogLevel        string
	LogPretty       bool
	ShutdownTimeout int // seconds

	Teamleader TeamleaderConfig
	Sync       SyncConfig
	Google     GoogleConfig
}

type TeamleaderConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	APIURL         string
	AuthorizeURL   string
	TokenURL       string
	PageSize       int
	WebhookSecret  string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

type SyncConfig struct {
	Enabled      bool
	Cron         string
	StartupDelay time.Duration
}

type GoogleConfig struct {
	CredentialsFile string
	AdminEmail      string
	CustomerID      string
	ProductID       string
}

// Enabled reports whether the Workspace licensing client can be built.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.CustomerID != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	backend := strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres))
	dbURL := os.Getenv("DATABASE_URL")
	mongoURI := os.Getenv("MONGO_URI")

	switch backend {
	case StoragePostgres:
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StorageMongo:
		if mongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORAGE_BACKEND=mongo")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", backend)
	}

	// Misconfigured OAuth credentials must fail at startup, not at the first sync.
	clientID := os.Getenv("TEAMLEADER_CLIENT_ID")
	clientSecret := os.Getenv("TEAMLEADER_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("TEAMLEADER_CLIENT_ID and TEAMLEADER_CLIENT_SECRET are required")
	}

	pageSize, err := getEnvInt("TEAMLEADER_PAGE_SIZE", 20)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("TEAMLEADER_PAGE_SIZE must be positive, got %d", pageSize)
	}

	syncEnabled, err := getEnvBool("SYNC_ENABLED", true)
	if err != nil {
		return nil, err
	}
	startupDelay, err := getEnvDuration("SYNC_STARTUP_DELAY", 30*time.Second)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := getEnvDuration("HTTP_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	logPretty, err := getEnvBool("LOG_PRETTY", false)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvInt("SHUTDOWN_TIMEOUT", 30)
	if err != nil {
		return nil, err
	}
	if shutdownTimeout <= 0 {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %d", shutdownTimeout)
	}

	google := GoogleConfig{
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		AdminEmail:      os.Getenv("GOOGLE_ADMIN_EMAIL"),
		CustomerID:      getEnv("GOOGLE_CUSTOMER_ID", "my_customer"),
		ProductID:       getEnv("GOOGLE_LICENSE_PRODUCT_ID", "Google-Apps"),
	}

	return &Config{
		DatabaseURL:     dbURL,
		StorageBackend:  backend,
		MongoURI:        mongoURI,
		MongoDatabase:   getEnv("MONGO_DATABASE", "saas_bridge"),
		RedisURL:        os.Getenv("REDIS_URL"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       logPretty,
		ShutdownTimeout: shutdownTimeout,
		Teamleader: TeamleaderConfig{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			RedirectURI:    os.Getenv("TEAMLEADER_REDIRECT_URI"),
			APIURL:         getEnv("TEAMLEADER_API_URL", "https://api.focus.teamleader.eu"),
			AuthorizeURL:   getEnv("TEAMLEADER_AUTHORIZE_URL", "https://focus.teamleader.eu/oauth2/authorize"),
			TokenURL:       getEnv("TEAMLEADER_TOKEN_URL", "https://focus.teamleader.eu/oauth2/access_token"),
			PageSize:       pageSize,
			WebhookSecret:  os.Getenv("TEAMLEADER_WEBHOOK_SECRET"),
			ConnectTimeout: connectTimeout,
			ReadTimeout:    readTimeout,
		},
		Sync: SyncConfig{
			Enabled:      syncEnabled,
			Cron:         getEnv("SYNC_CRON", "0 3 * * *"),
			StartupDelay: startupDelay,
		},
		Google: google,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
