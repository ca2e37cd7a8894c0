// Пакет config — загрузка и валидация конфигурации filedrop
// из переменных окружения (и необязательного .env-файла).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые драйверы каталога метаданных.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config содержит все параметры конфигурации filedrop.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория хранения загруженных файлов
	DataDir string
	// Публичный базовый URL, к которому добавляется идентификатор файла
	PublicBaseURL string
	// Общий секрет для подписи токенов загрузки (HS256)
	UploadSecret string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration

	// Драйвер каталога: sqlite или postgres
	DBDriver string
	// Путь к файлу SQLite (только для sqlite)
	SQLitePath string
	// Параметры подключения к PostgreSQL (только для postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Срок хранения файла
	Retention time.Duration
	// Интервал запуска очистки устаревших файлов
	SweepInterval time.Duration
	// Допустимое опоздание плановой очистки, после которого при старте
	// выполняется догоняющий запуск
	SweepMisfireGrace time.Duration
	// Время жизни аренды очистки в каталоге
	SweepLeaseTTL time.Duration
	// Интервал автоматической сверки (0 — отключена)
	ReconcileInterval time.Duration
	// Минимальный возраст файла-сироты для удаления при сверке
	OrphanGrace time.Duration

	// Лимиты повторных попыток генерации идентификатора и имени файла
	IDMaxAttempts   int
	NameMaxAttempts int

	// Параметры LRU-кэша записей
	CacheSize int
	CacheTTL  time.Duration

	// SMTP для уведомлений о загрузке (пустой хост — уведомления только в лог)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Разрешённые CORS origins
	CORSOrigins []string

	// TLS сертификат и ключ (оба пустые — HTTP без TLS)
	TLSCert string
	TLSKey  string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (FD_DEPHEALTH_GROUP)
	DephealthGroup string
}

// LoadEnvFile загружает переменные из .env-файла, не перезаписывая
// уже заданные в окружении. Пустой путь означает FD_ENV_FILE или ".env".
// Отсутствие файла по умолчанию не считается ошибкой.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("FD_ENV_FILE")
		explicit = path != ""
	}
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка загрузки env-файла %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FD_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("FD_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// FD_PUBLIC_BASE_URL — базовый адрес ссылок на файлы
	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("FD_PUBLIC_BASE_URL", "http://127.0.0.1:8080/file"), "/")
	if u, parseErr := url.Parse(cfg.PublicBaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("FD_PUBLIC_BASE_URL: некорректный URL %q", cfg.PublicBaseURL)
	}

	// FD_UPLOAD_SECRET — проверяется при запуске сервера, см. ValidateServe
	cfg.UploadSecret = getEnvDefault("FD_UPLOAD_SECRET", "")

	// FD_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 MiB)
	cfg.MaxFileSize, err = getEnvInt64("FD_MAX_FILE_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("FD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.JWTLeeway, err = getEnvDuration("FD_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_JWT_LEEWAY: %w", err)
	}

	if err := loadDatabase(cfg); err != nil {
		return nil, err
	}
	if err := loadLifecycle(cfg); err != nil {
		return nil, err
	}

	// FD_CACHE_SIZE / FD_CACHE_TTL — LRU-кэш записей каталога
	cfg.CacheSize, err = getEnvInt("FD_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FD_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("FD_CACHE_SIZE: значение не может быть отрицательным")
	}
	cfg.CacheTTL, err = getEnvDuration("FD_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FD_CACHE_TTL: %w", err)
	}

	// SMTP — необязательный блок
	cfg.SMTPHost = getEnvDefault("FD_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("FD_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("FD_SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = getEnvDefault("FD_SMTP_USER", "")
	cfg.SMTPPassword = getEnvDefault("FD_SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvDefault("FD_SMTP_FROM", cfg.SMTPUser)
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("FD_SMTP_FROM: обязателен при заданном FD_SMTP_HOST")
	}

	cfg.CORSOrigins = parseCSV(getEnvDefault("FD_CORS_ORIGINS", ""))

	// FD_TLS_CERT / FD_TLS_KEY — задаются парой
	cfg.TLSCert = getEnvDefault("FD_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("FD_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("FD_TLS_CERT и FD_TLS_KEY должны задаваться вместе")
	}

	// FD_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FD_LOG_LEVEL: %w", err)
	}

	// FD_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("FD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("FD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FD_DEPHEALTH_GROUP", "filedrop")

	return cfg, nil
}

// loadDatabase читает параметры каталога метаданных.
func loadDatabase(cfg *Config) error {
	var err error

	cfg.DBDriver = strings.ToLower(getEnvDefault("FD_DB_DRIVER", DriverSQLite))
	switch cfg.DBDriver {
	case DriverSQLite:
		cfg.SQLitePath = getEnvDefault("FD_SQLITE_PATH", "filedrop.db")
	case DriverPostgres:
		cfg.DBHost = getEnvDefault("FD_DB_HOST", "localhost")
		cfg.DBPort, err = getEnvInt("FD_DB_PORT", 5432)
		if err != nil {
			return fmt.Errorf("FD_DB_PORT: %w", err)
		}
		cfg.DBName = getEnvDefault("FD_DB_NAME", "filedrop")
		cfg.DBUser, err = getEnvRequired("FD_DB_USER")
		if err != nil {
			return err
		}
		cfg.DBPassword, err = getEnvRequired("FD_DB_PASSWORD")
		if err != nil {
			return err
		}
		cfg.DBSSLMode = getEnvDefault("FD_DB_SSL_MODE", "disable")
	default:
		return fmt.Errorf("FD_DB_DRIVER: недопустимое значение %q, допустимые: sqlite, postgres", cfg.DBDriver)
	}
	return nil
}

// loadLifecycle читает параметры хранения и очистки.
func loadLifecycle(cfg *Config) error {
	var err error

	// FD_RETENTION — срок хранения (по умолчанию 10 суток)
	cfg.Retention, err = getEnvDuration("FD_RETENTION", 240*time.Hour)
	if err != nil {
		return fmt.Errorf("FD_RETENTION: %w", err)
	}
	if cfg.Retention <= 0 {
		return fmt.Errorf("FD_RETENTION: значение должно быть положительным")
	}

	// FD_SWEEP_INTERVAL — интервал очистки (по умолчанию 2 суток)
	cfg.SweepInterval, err = getEnvDuration("FD_SWEEP_INTERVAL", 48*time.Hour)
	if err != nil {
		return fmt.Errorf("FD_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("FD_SWEEP_INTERVAL: значение должно быть положительным")
	}

	cfg.SweepMisfireGrace, err = getEnvDuration("FD_SWEEP_MISFIRE_GRACE", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("FD_SWEEP_MISFIRE_GRACE: %w", err)
	}

	cfg.SweepLeaseTTL, err = getEnvDuration("FD_SWEEP_LEASE_TTL", time.Hour)
	if err != nil {
		return fmt.Errorf("FD_SWEEP_LEASE_TTL: %w", err)
	}
	if cfg.SweepLeaseTTL <= 0 {
		return fmt.Errorf("FD_SWEEP_LEASE_TTL: значение должно быть положительным")
	}

	cfg.ReconcileInterval, err = getEnvDuration("FD_RECONCILE_INTERVAL", 0)
	if err != nil {
		return fmt.Errorf("FD_RECONCILE_INTERVAL: %w", err)
	}

	cfg.OrphanGrace, err = getEnvDuration("FD_ORPHAN_GRACE", time.Hour)
	if err != nil {
		return fmt.Errorf("FD_ORPHAN_GRACE: %w", err)
	}

	cfg.IDMaxAttempts, err = getEnvInt("FD_ID_MAX_ATTEMPTS", 1000)
	if err != nil {
		return fmt.Errorf("FD_ID_MAX_ATTEMPTS: %w", err)
	}
	if cfg.IDMaxAttempts < 1 {
		return fmt.Errorf("FD_ID_MAX_ATTEMPTS: значение должно быть >= 1")
	}

	cfg.NameMaxAttempts, err = getEnvInt("FD_NAME_MAX_ATTEMPTS", 1000)
	if err != nil {
		return fmt.Errorf("FD_NAME_MAX_ATTEMPTS: %w", err)
	}
	if cfg.NameMaxAttempts < 1 {
		return fmt.Errorf("FD_NAME_MAX_ATTEMPTS: значение должно быть >= 1")
	}
	return nil
}

// ValidateServe проверяет параметры, обязательные только для HTTP-сервера.
func (c *Config) ValidateServe() error {
	if c.UploadSecret == "" {
		return fmt.Errorf("FD_UPLOAD_SECRET: обязательная переменная окружения не задана")
	}
	if len(c.UploadSecret) < 16 {
		return fmt.Errorf("FD_UPLOAD_SECRET: секрет короче 16 символов")
	}
	return nil
}

// RetentionDays — срок хранения в сутках (для уведомлений), округлённый вверх.
func (c *Config) RetentionDays() int {
	day := 24 * time.Hour
	return int((c.Retention + day - 1) / day)
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL базы данных для golang-migrate.
func (c *Config) MigrateURL() string {
	if c.DBDriver == DriverPostgres {
		u := url.URL{
			Scheme:   "pgx5",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
			Path:     "/" + c.DBName,
			RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
		}
		return u.String()
	}
	return "sqlite3://" + c.SQLitePath
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	return SetupLoggerTo(cfg, os.Stdout)
}

// SetupLoggerTo — как SetupLogger, но с указанным приёмником.
// CLI-команды пишут логи в stderr, чтобы не смешивать их с выводом.
func SetupLoggerTo(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 48h)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
