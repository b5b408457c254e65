package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"physioheal/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CLINIC_EMAIL", "clinic@example.com")

	yamlContent := `
clinic:
  email: "${CLINIC_EMAIL}"
database:
  path: "test.db"
booking:
  reset_delay: 5s
managers: [1001, 1002]
google:
  sync:
    initial_delay: 500ms
    jitter: 0.2
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Clinic.Email != "clinic@example.com" {
		t.Errorf("expected clinic email from env, got %s", cfg.Clinic.Email)
	}
	if cfg.Booking.ResetDelay != 5*time.Second {
		t.Errorf("expected reset delay 5s, got %s", cfg.Booking.ResetDelay)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if len(cfg.Managers) != 2 {
		t.Errorf("expected 2 managers, got %d", len(cfg.Managers))
	}
	if cfg.Google.Sync.InitialDelay != 500*time.Millisecond || cfg.Google.Sync.Jitter != 0.2 {
		t.Errorf("unexpected sync config %+v", cfg.Google.Sync)
	}
	if cfg.Google.Sync.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.Google.Sync.MaxRetries)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Clinic:   ClinicConfig{Email: "clinic@example.com"},
			Database: DatabaseConfig{Driver: "sqlite", Path: "path"},
			Email:    EmailConfig{Provider: "stub"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing clinic email", mutate: func(c *Config) { c.Clinic.Email = " " }, wantErr: true},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.Postgres = PostgresConfig{DBName: "clinic"}
			},
			wantErr: true,
		},
		{
			name: "postgres ok",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.Postgres = PostgresConfig{Host: "db", DBName: "clinic"}
			},
		},
		{name: "negative reset delay", mutate: func(c *Config) { c.Booking.ResetDelay = -time.Second }, wantErr: true},
		{name: "sendgrid without key", mutate: func(c *Config) { c.Email.Provider = "sendgrid" }, wantErr: true},
		{name: "sync jitter too large", mutate: func(c *Config) { c.Google.Sync.Jitter = 1 }, wantErr: true},
		{name: "sync shrinking backoff", mutate: func(c *Config) { c.Google.Sync.BackoffFactor = 0.5 }, wantErr: true},
		{
			name: "sync max below initial",
			mutate: func(c *Config) {
				c.Google.Sync.InitialDelay = time.Minute
				c.Google.Sync.MaxDelay = time.Second
			},
			wantErr: true,
		},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Key: "k", Name: "a"}, {Key: "k", Name: "b"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Booking.ResetDelay != models.DefaultResetDelay {
		t.Errorf("expected default reset delay %s, got %s", models.DefaultResetDelay, cfg.Booking.ResetDelay)
	}
	if cfg.Booking.SessionTTL != models.DefaultSessionTTL {
		t.Errorf("expected default session ttl %s, got %s", models.DefaultSessionTTL, cfg.Booking.SessionTTL)
	}
	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Contact.ComposeSubject != "Physiotherapy Inquiry" {
		t.Errorf("unexpected compose subject %q", cfg.Contact.ComposeSubject)
	}
	if cfg.Email.Provider != "stub" {
		t.Errorf("expected stub email provider, got %s", cfg.Email.Provider)
	}
	want := SheetsSyncConfig{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	if cfg.Google.Sync != want {
		t.Errorf("unexpected sync defaults %+v", cfg.Google.Sync)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "clinic", SSLMode: "disable", MaxConnections: 4}
	want := "host=db port=5432 user=u password=p dbname=clinic sslmode=disable pool_max_conns=4"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadServices(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		services, err := LoadServices("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(services) != len(DefaultServices) {
			t.Errorf("expected %d services, got %d", len(DefaultServices), len(services))
		}
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "services.yaml")
		content := `
services:
  - name: "Manual Therapy"
    sort_order: 2
  - name: "Pain Management"
    sort_order: 1
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		services, err := LoadServices(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(services) != 2 || services[0].Name != "Pain Management" {
			t.Errorf("expected services sorted by sort_order, got %+v", services)
		}
	})
}

func TestValidateServices(t *testing.T) {
	tests := []struct {
		name     string
		services []models.Service
		wantErr  bool
	}{
		{name: "Valid", services: []models.Service{{Name: "A"}, {Name: "B"}}},
		{name: "Empty", services: nil, wantErr: true},
		{name: "Duplicate", services: []models.Service{{Name: "A"}, {Name: "A"}}, wantErr: true},
		{name: "NoName", services: []models.Service{{Name: " "}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServices(tt.services)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServices() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
