// Package config loads process configuration from the environment and
// command-line flags, and game rules from YAML.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tatianab/roguellm/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	LowModel     string `env:"ROGUELLM_LOW_MODEL" envDefault:"gemini-2.5-flash-lite"`
	HighModel    string `env:"ROGUELLM_HIGH_MODEL" envDefault:"gemini-2.5-flash"`

	Addr   string `env:"ROGUELLM_ADDR" envDefault:":8000"`
	DBPath string `env:"ROGUELLM_DB_PATH" envDefault:"roguellm.db"`

	BackupDir      string        `env:"ROGUELLM_BACKUP_DIR"`
	BackupBucket   string        `env:"ROGUELLM_BACKUP_BUCKET"`
	BackupInterval time.Duration `env:"ROGUELLM_BACKUP_INTERVAL" envDefault:"5m"`

	SessionCreateTimeout time.Duration `env:"ROGUELLM_SESSION_CREATE_TIMEOUT" envDefault:"90s"`
	SessionIdleTTL       time.Duration `env:"ROGUELLM_SESSION_IDLE_TTL" envDefault:"2h"`

	RulesPath    string `env:"ROGUELLM_RULES_PATH"`
	OTelEndpoint string `env:"ROGUELLM_OTEL_ENDPOINT"`
}

// ParseConfig reads the environment, then lets flags in args override it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "YAML game rules file")
	fs.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "directory receiving database backups")
	fs.StringVar(&cfg.LowModel, "low-model", cfg.LowModel, "model for routine generation")
	fs.StringVar(&cfg.HighModel, "high-model", cfg.HighModel, "model for demanding generation")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireAPIKey reports an error when no Gemini key is configured.
func (c Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is not set")
	}
	return nil
}

// LoadRules reads game rules from a YAML file. Fields missing from the file
// keep their defaults; an empty path yields the defaults.
func LoadRules(path string) (models.Rules, error) {
	rules := models.DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return models.Rules{}, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return models.Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}
