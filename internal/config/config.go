// Package config loads the ledger settings from ledger.toml, .env files and
// LEDGER_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable: http.port is read
// from LEDGER_HTTP_PORT.
const EnvPrefix = "LEDGER"

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Data    DataConfig
	Backup  BackupConfig
	JWT     JWTConfig
	Console ConsoleConfig
	Log     logger.Config
}

type AppConfig struct {
	Env string
}

type HTTPConfig struct {
	Port string
}

type DataConfig struct {
	Dir  string
	File string
}

// Path is the document file location.
func (d DataConfig) Path() string {
	return filepath.Join(d.Dir, d.File)
}

type BackupConfig struct {
	Dir string
	Key string // hex, 32 bytes; empty leaves backups unsealed
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type ConsoleConfig struct {
	Port string // empty disables the console
	TLS  bool
}

// IsProduction reports whether app.env is "production".
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", "7002")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.file", "ledger.json")
	v.SetDefault("backup.dir", "./backups")
	v.SetDefault("backup.key", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 30*24*time.Hour)
	v.SetDefault("console.port", "")
	v.SetDefault("console.tls", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Load reads the configuration. The config file is optional; paths lists
// extra directories to search for ledger.toml.
func Load(paths ...string) (*Config, error) {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("ledger")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App:  AppConfig{Env: v.GetString("app.env")},
		HTTP: HTTPConfig{Port: v.GetString("http.port")},
		Data: DataConfig{
			Dir:  v.GetString("data.dir"),
			File: v.GetString("data.file"),
		},
		Backup: BackupConfig{
			Dir: v.GetString("backup.dir"),
			Key: v.GetString("backup.key"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
		Console: ConsoleConfig{
			Port: v.GetString("console.port"),
			TLS:  v.GetBool("console.tls"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if cfg.IsProduction() && cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret must be set in production")
	}
	return cfg, nil
}
