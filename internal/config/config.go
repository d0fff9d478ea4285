package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/contentcrm/pkg/ollama"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string         `yaml:"addr"`
	JWTSecret      string         `yaml:"jwt_secret"`
	APITimeout     time.Duration  `yaml:"timeout"`
	TokenDuration  time.Duration  `yaml:"token_duration"`
	MigrateOnStart bool           `yaml:"migrate_on_start"`
	Database       DatabaseConfig `yaml:"database"`
	Workflow       WorkflowConfig `yaml:"workflow"`
	Summary        SummaryConfig  `yaml:"summary"`
	Ollama         ollama.Config  `yaml:"ollama"`
	Workers        int            `yaml:"workers"`
	AuthRate       RateConfig     `yaml:"auth_rate"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

type WorkflowConfig struct {
	// MaxRetries bounds how often a transition is re-evaluated after losing a version race.
	MaxRetries    int           `yaml:"max_retries"`
	DueSoonWindow time.Duration `yaml:"due_soon_window"`
}

type SummaryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Model       string        `yaml:"model"`
	Template    string        `yaml:"template"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("CRM_ADDR", ":8080"),
		JWTSecret:     getEnv("CRM_JWT_SECRET", insecureJWTSecret),
		APITimeout:    15 * time.Second,
		TokenDuration: 12 * time.Hour,
		Database: DatabaseConfig{
			Driver: getEnv("CRM_DATABASE_DRIVER", DriverSQLite),
			Path:   getEnv("CRM_DATABASE_PATH", "crm.db"),
			URL:    os.Getenv("CRM_DATABASE_URL"),
		},
		Workflow: WorkflowConfig{
			MaxRetries:    3,
			DueSoonWindow: 10 * time.Minute,
		},
		Workers:  2,
		AuthRate: RateConfig{RPS: 5, Burst: 10},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate rejects unusable settings and fills defaults for optional sections.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.JWTSecret == insecureJWTSecret && os.Getenv("CRM_ENV") != "development" {
		errs = append(errs, errors.New("jwt_secret uses the insecure default; set CRM_JWT_SECRET or CRM_ENV=development"))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Summary.Enabled && c.Summary.Model == "" {
		errs = append(errs, errors.New("summary.model is required when summary is enabled"))
	}
	if c.Summary.Enabled && c.Database.Driver == DriverPostgres {
		errs = append(errs, errors.New("summary needs the sqlite task queue; disable it for postgres"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 12 * time.Hour
	}
	if c.Workflow.MaxRetries <= 0 {
		c.Workflow.MaxRetries = 3
	}
	if c.Workflow.DueSoonWindow <= 0 {
		c.Workflow.DueSoonWindow = 10 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Summary.Timeout <= 0 {
		c.Summary.Timeout = time.Minute
	}
	if c.Summary.MaxAttempts <= 0 {
		c.Summary.MaxAttempts = 3
	}

	c.Ollama = c.Ollama.WithDefaults()
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == DriverPostgres {
		return c.Database.URL
	}
	return c.Database.Path
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
