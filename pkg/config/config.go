package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds everything cmd/server reads from the environment.
type Server struct {
	DatabaseURL        string
	Port               string
	AllowedOrigins     []string
	AllowCredentials   bool
	JWTSecret          string
	JWTTTL             time.Duration
	RedisURL           string
	UploadDir          string
	PaymentCallbackKey string
	TLS                TLSSettings
}

// TLSSettings holds environment-driven TLS configuration.
type TLSSettings struct {
	EnableTLS bool
	CertPath  string
	KeyPath   string
	Env       string // "production" or "development"
}

// Client holds the settings of the rentctl client SDK.
type Client struct {
	APIURL       string
	WSURL        string
	SessionFile  string
	PollInterval time.Duration
}

// LoadEnv reads a .env file if present. Missing files are not an error.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

func LoadServer() (Server, error) {
	cfg := Server{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               os.Getenv("SERVER_PORT"),
		AllowedOrigins:     splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowCredentials:   getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTTTL:             getEnvAsDuration("JWT_TTL", "72h"),
		RedisURL:           os.Getenv("REDIS_URL"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		PaymentCallbackKey: os.Getenv("PAYMENT_CALLBACK_KEY"),
		TLS:                loadTLSSettings(),
	}

	if cfg.DatabaseURL == "" {
		return Server{}, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.JWTSecret == "" {
		return Server{}, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Port == "" {
		if cfg.TLS.EnableTLS {
			cfg.Port = "8443"
		} else {
			cfg.Port = "8080"
		}
	}
	if err := cfg.TLS.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func LoadClient() Client {
	apiURL := strings.TrimRight(getEnv("RENT_API_URL", "http://localhost:8080"), "/")
	wsURL := os.Getenv("RENT_WS_URL")
	if wsURL == "" {
		wsURL = DeriveWebSocketURL(apiURL)
	}

	sessionFile := os.Getenv("RENT_SESSION_FILE")
	if sessionFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			sessionFile = dir + "/rentmarket/session.json"
		} else {
			sessionFile = ".rentmarket-session.json"
		}
	}

	return Client{
		APIURL:       apiURL,
		WSURL:        wsURL,
		SessionFile:  sessionFile,
		PollInterval: getEnvAsDuration("RENT_POLL_INTERVAL", "5s"),
	}
}

// DeriveWebSocketURL maps http(s)://host to ws(s)://host/ws.
func DeriveWebSocketURL(apiURL string) string {
	u := strings.TrimRight(apiURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// loadTLSSettings reads ENABLE_TLS, TLS_CERT_PATH, TLS_KEY_PATH and APP_ENV (or ENV).
func loadTLSSettings() TLSSettings {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	}
	if env == "" {
		env = "development"
	}

	enableTLS := getEnvAsBool("ENABLE_TLS", false)
	if env == "production" {
		enableTLS = true
	}

	return TLSSettings{
		EnableTLS: enableTLS,
		CertPath:  os.Getenv("TLS_CERT_PATH"),
		KeyPath:   os.Getenv("TLS_KEY_PATH"),
		Env:       env,
	}
}

// Validate ensures TLS settings are safe for the selected environment.
func (s TLSSettings) Validate() error {
	if s.EnableTLS && (s.CertPath == "" || s.KeyPath == "") {
		return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH are required when TLS is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration for %s, using default: %s", key, defaultValue)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// GetEnvAsDuration is exported for packages that read their own tuning knobs.
func GetEnvAsDuration(key, defaultValue string) time.Duration {
	return getEnvAsDuration(key, defaultValue)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}
