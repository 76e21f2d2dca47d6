package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = "3130"
	defaultAdminPassword = "admin"
)

type Config struct {
	Port              string        `yaml:"port"`
	DataPath          string        `yaml:"data_path"`
	UploadDir         string        `yaml:"upload_dir"`
	TemplatesDir      string        `yaml:"templates_dir"`
	StaticDir         string        `yaml:"static_dir"`
	AdminPassword     string        `yaml:"admin_password"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	ThumbnailWidth    uint          `yaml:"thumbnail_width"`
	LoginRateWindow   time.Duration `yaml:"login_rate_window"`
	LogLevel          string        `yaml:"log_level"`
	CookieDomain      string        `yaml:"cookie_domain"`
	CookieSecure      bool          `yaml:"cookie_secure"`
	CSRFKey           []byte        `yaml:"-"`
	SessionKey        []byte        `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Port:            defaultPort,
		DataPath:        "./data/commissions.json",
		UploadDir:       "./uploads",
		TemplatesDir:    "templates",
		StaticDir:       "./static",
		AdminPassword:   defaultAdminPassword,
		MaxUploadBytes:  100 << 20,
		ThumbnailWidth:  320,
		LoginRateWindow: 2 * time.Second,
		LogLevel:        "debug",
	}
}

// LoadConfig starts from defaults, applies the YAML file named by CONFIG_FILE
// if set, and then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataPath = getEnv("DATA_PATH", cfg.DataPath)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.TemplatesDir = getEnv("TEMPLATES_DIR", cfg.TemplatesDir)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", cfg.AdminPasswordHash)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CookieDomain = getEnv("COOKIE_DOMAIN", cfg.CookieDomain)
	cfg.CookieSecure = getEnv("COOKIE_SECURE", strconv.FormatBool(cfg.CookieSecure)) == "true"

	if v, ok := os.LookupEnv("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}
	if v, ok := os.LookupEnv("THUMBNAIL_WIDTH"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid THUMBNAIL_WIDTH %q", v)
		}
		cfg.ThumbnailWidth = uint(n)
	}
	if v, ok := os.LookupEnv("LOGIN_RATE_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOGIN_RATE_WINDOW %q: %w", v, err)
		}
		cfg.LoginRateWindow = d
	}

	cfg.CSRFKey = loadKey("CSRF_KEY", "Forms will be rejected after a restart")
	cfg.SessionKey = loadKey("SESSION_KEY", "Sessions will be invalid on restart")

	if cfg.AdminPasswordHash == "" && cfg.AdminPassword == defaultAdminPassword {
		slog.Warn("ADMIN_PASSWORD not set, using the default password. PLEASE SET ADMIN_PASSWORD OR ADMIN_PASSWORD_HASH IN PRODUCTION!")
	}

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT. Falling back to default.", "PORT", cfg.Port)
		cfg.Port = defaultPort
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to debug.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelDebug
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// loadKey decodes a base64 key of at least 32 bytes from env, or generates a
// random one for development.
func loadKey(env, consequence string) []byte {
	raw := os.Getenv(env)
	if raw == "" {
		slog.Warn(env+" environment variable not set. Generating a random key for development. "+consequence+".", "key", env)
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) < 32 {
		slog.Warn(env+" is invalid or too short (min 32 bytes). Generating a random key for development.", "key", env)
		return generateRandomBytes(32)
	}
	return decoded
}

// generateRandomBytes generates a random byte slice of specified length
// Uses crypto/rand for secure random numbers.
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Failed to read random bytes", "error", err)
		fallbackKey := "fallback-insecure-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		padded := make([]byte, n)
		copy(padded, fallbackKey)
		return padded
	}
	return b
}

// DefaultDataPath is the data file used when no flag overrides it: DATA_PATH
// if set, otherwise the built-in default.
func DefaultDataPath() string {
	return getEnv("DATA_PATH", defaults().DataPath)
}
