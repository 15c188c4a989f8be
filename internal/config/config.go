package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Supported values for the selector fields.
var (
	StorageBackends = []string{"memory", "sqlite", "postgres", "redis"}
	AIClientTypes   = []string{"openai", "ollama", "gemini"}
	Voices          = []string{"nova", "shimmer"}
)

// Config содержит конфигурацию приложения
type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"console"`
	LogOutput   string `envconfig:"LOG_OUTPUT" default:""`

	// HTTP
	HTTPPort           string        `envconfig:"HTTP_PORT" default:"8080"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Хранилище
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"sqlite"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"data/storybook.db"`
	DatabaseURL    string `envconfig:"DATABASE_URL" default:"postgres://postgres@localhost:5432/storybook?sslmode=disable"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNECTIONS" default:"5"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"storybook:"`

	// AI провайдер
	AIClientType     string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AIModel          string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AITemperature    float64       `envconfig:"AI_TEMPERATURE" default:"0.8"`
	AIMaxTokens      int           `envconfig:"AI_MAX_TOKENS" default:"2000"`
	CredentialPrefix string        `envconfig:"CREDENTIAL_PREFIX" default:"sk-"`

	// Озвучка
	TTSModel             string        `envconfig:"TTS_MODEL" default:"tts-1"`
	TTSDefaultVoice      string        `envconfig:"TTS_DEFAULT_VOICE" default:"nova"`
	AudioCacheMaxEntries int           `envconfig:"AUDIO_CACHE_MAX_ENTRIES" default:"200"`
	AudioCacheTTL        time.Duration `envconfig:"AUDIO_CACHE_TTL" default:"720h"`

	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	// Секреты: из переменных окружения или файлов в SecretsDir
	AIAPIKey      string `envconfig:"AI_API_KEY"`
	DBPassword    string `envconfig:"DB_PASSWORD"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	secrets := []struct {
		name string
		dst  *string
	}{
		{"ai_api_key", &cfg.AIAPIKey},
		{"db_password", &cfg.DBPassword},
		{"redis_password", &cfg.RedisPassword},
	}
	for _, s := range secrets {
		if *s.dst != "" {
			continue
		}
		value, err := ReadSecret(cfg.SecretsDir, s.name)
		if err != nil {
			return nil, err
		}
		*s.dst = value
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the selector fields and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(StorageBackends, c.StorageBackend) {
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be one of %v, got %q", StorageBackends, c.StorageBackend))
	}
	if !slices.Contains(AIClientTypes, c.AIClientType) {
		errs = append(errs, fmt.Errorf("AI_CLIENT_TYPE must be one of %v, got %q", AIClientTypes, c.AIClientType))
	}
	if !slices.Contains(Voices, c.TTSDefaultVoice) {
		errs = append(errs, fmt.Errorf("TTS_DEFAULT_VOICE must be one of %v, got %q", Voices, c.TTSDefaultVoice))
	}
	if c.AIMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", c.AIMaxTokens))
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		errs = append(errs, fmt.Errorf("AI_TEMPERATURE must be within [0, 2], got %v", c.AITemperature))
	}
	if c.AudioCacheMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_CACHE_MAX_ENTRIES must be positive, got %d", c.AudioCacheMaxEntries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// PostgresDSN returns DATABASE_URL with DB_PASSWORD applied when the URL has none.
func (c *Config) PostgresDSN() string {
	if c.DBPassword == "" {
		return c.DatabaseURL
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	if _, set := u.User.Password(); set {
		return c.DatabaseURL
	}
	u.User = url.UserPassword(u.User.Username(), c.DBPassword)
	return u.String()
}

// LogSummary пишет загруженную конфигурацию в лог, маскируя секреты.
func (c *Config) LogSummary(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.String("env", c.Env),
		zap.String("logLevel", c.LogLevel),
		zap.String("httpPort", c.HTTPPort),
		zap.Strings("corsAllowedOrigins", c.CORSAllowedOrigins),
		zap.String("storageBackend", c.StorageBackend),
		zap.String("sqlitePath", c.SQLitePath),
		zap.String("databaseURL", MaskDSN(c.PostgresDSN())),
		zap.String("redisAddr", c.RedisAddr),
		zap.String("aiClientType", c.AIClientType),
		zap.String("aiBaseURL", c.AIBaseURL),
		zap.String("aiModel", c.AIModel),
		zap.Duration("aiTimeout", c.AITimeout),
		zap.Float64("aiTemperature", c.AITemperature),
		zap.Int("aiMaxTokens", c.AIMaxTokens),
		zap.String("ttsModel", c.TTSModel),
		zap.String("ttsDefaultVoice", c.TTSDefaultVoice),
		zap.Int("audioCacheMaxEntries", c.AudioCacheMaxEntries),
		zap.Duration("audioCacheTTL", c.AudioCacheTTL),
		zap.Bool("aiAPIKeySeeded", c.AIAPIKey != ""),
	)
}

// MaskDSN скрывает пароль в DSN.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "[invalid dsn format]"
	}
	return u.Redacted()
}

// ReadSecret читает секрет из файла в каталоге Docker Secrets.
// Отсутствующий файл не ошибка: секрет просто не задан.
func ReadSecret(dir, secretName string) (string, error) {
	if dir == "" {
		return "", nil
	}
	filePath := filepath.Join(dir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	return strings.TrimSpace(string(secretBytes)), nil
}
