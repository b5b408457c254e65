package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"physioheal/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Clinic     ClinicConfig     `yaml:"clinic"`
	Booking    BookingConfig    `yaml:"booking"`
	Contact    ContactConfig    `yaml:"contact"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Managers   []int64          `yaml:"managers"`
	Email      EmailConfig      `yaml:"email"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type ClinicConfig struct {
	Name           string   `yaml:"name"`
	Email          string   `yaml:"email"`
	Phone          string   `yaml:"phone"`
	EmergencyPhone string   `yaml:"emergency_phone"`
	Address        string   `yaml:"address"`
	Hours          []string `yaml:"hours"`
	ServicesFile   string   `yaml:"services_file"`
}

type BookingConfig struct {
	ResetDelay time.Duration `yaml:"reset_delay"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type ContactConfig struct {
	ComposeLinkEnabled bool   `yaml:"compose_link_enabled"`
	ComposeSubject     string `yaml:"compose_subject"`
	RelayEmail         bool   `yaml:"relay_email"`
}

type APIConfig struct {
	Enabled     bool               `yaml:"enabled"`
	HTTP        APIHTTPConfig      `yaml:"http"`
	GRPC        APIGRPCConfig      `yaml:"grpc"`
	Auth        APIAuthConfig      `yaml:"auth"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string           `yaml:"cors_origins"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`

	// TrustProxy берет адрес клиента из X-Forwarded-For / X-Real-IP
	TrustProxy bool `yaml:"trust_proxy"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type EmailConfig struct {
	Provider       string `yaml:"provider"` // sendgrid, stub
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite, postgres
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN builds a libpq style connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
	if p.MaxConnections > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", p.MaxConnections)
	}
	return dsn
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string           `yaml:"credentials_file"`
	BookingSpreadSheetID  string           `yaml:"bookings_spreadsheet_id"`
	ContactSpreadSheetID  string           `yaml:"contacts_spreadsheet_id"`
	Sync                  SheetsSyncConfig `yaml:"sync"`
}

// SheetsSyncConfig задает повторы записи в Google Sheets.
// Jitter is the fraction each delay may deviate by, in [0, 1).
type SheetsSyncConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        float64       `yaml:"jitter"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Clinic.Email) == "" {
		return errors.New("clinic email is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Booking.ResetDelay < 0 {
		return errors.New("booking reset_delay must not be negative")
	}

	sync := c.Google.Sync
	if sync.Jitter < 0 || sync.Jitter >= 1 {
		return fmt.Errorf("google sync jitter must be in [0, 1), got %v", sync.Jitter)
	}
	if sync.BackoffFactor != 0 && sync.BackoffFactor < 1 {
		return fmt.Errorf("google sync backoff_factor must be at least 1, got %v", sync.BackoffFactor)
	}
	if sync.MaxDelay > 0 && sync.MaxDelay < sync.InitialDelay {
		return errors.New("google sync max_delay must not be less than initial_delay")
	}

	switch c.Email.Provider {
	case "stub":
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" || c.Email.FromEmail == "" {
			return errors.New("sendgrid requires sendgrid_api_key and from_email")
		}
	default:
		return fmt.Errorf("unknown email provider %q", c.Email.Provider)
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "physioheal"
	}
	if c.Clinic.Name == "" {
		c.Clinic.Name = "PhysioHeal"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Booking defaults
	if c.Booking.ResetDelay == 0 {
		c.Booking.ResetDelay = models.DefaultResetDelay
	}
	if c.Booking.SessionTTL == 0 {
		c.Booking.SessionTTL = models.DefaultSessionTTL
	}
	if c.Contact.ComposeSubject == "" {
		c.Contact.ComposeSubject = "Physiotherapy Inquiry"
	}
	if c.Email.Provider == "" {
		c.Email.Provider = "stub"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	// Повторы синхронизации с Google Sheets
	if c.Google.Sync.MaxRetries == 0 {
		c.Google.Sync.MaxRetries = 5
	}
	if c.Google.Sync.InitialDelay == 0 {
		c.Google.Sync.InitialDelay = 2 * time.Second
	}
	if c.Google.Sync.MaxDelay == 0 {
		c.Google.Sync.MaxDelay = time.Minute
	}
	if c.Google.Sync.BackoffFactor == 0 {
		c.Google.Sync.BackoffFactor = 2
	}
}
