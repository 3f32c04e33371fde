// Package config loads the dbsync configuration from a YAML file, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/koba/db-sync/internal/database"
)

// EnvFiles are read in order; a variable already set is never overridden.
var EnvFiles = []string{".env.local", ".env"}

// Config holds the application configuration
type Config struct {
	Database database.Config `mapstructure:"database"`
	Log      Log             `mapstructure:"log"`
	// Declarations is a YAML file or a directory of YAML files describing the tables.
	Declarations string `mapstructure:"declarations"`
	// Snapshots is the directory snapshot files are written to.
	Snapshots string `mapstructure:"snapshots"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacy variables still honored after the DBSYNC_ ones
var envFallbacks = map[string]string{
	"database.type":     "DB_TYPE",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.dsn":      "DATABASE_URL",
}

// Load reads the configuration. When file is empty, .dbsync.yaml is searched in the working
// directory and the home directory; a missing file is not an error.
func Load(fs afero.Fs, file string) (*Config, error) {
	if err := loadEnvFiles(fs); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(fs)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".dbsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "dbsync"))
		}
	}

	v.SetEnvPrefix("DBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range envFallbacks {
		if err := v.BindEnv(key, "DBSYNC_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, err
		}
	}

	v.SetDefault("database.host", "localhost")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("declarations", "schema")
	v.SetDefault("snapshots", "./snapshots")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings required to connect.
func (c *Config) Validate() error {
	db := c.Database
	if db.DSN != "" && db.Type != "" {
		return nil
	}
	if db.Type == "" {
		return fmt.Errorf("database type is required (DBSYNC_DATABASE_TYPE or DB_TYPE)")
	}
	if db.Database == "" {
		return fmt.Errorf("database name is required (DBSYNC_DATABASE_NAME or DB_NAME)")
	}
	return nil
}

func loadEnvFiles(fs afero.Fs) error {
	for _, name := range EnvFiles {
		f, err := fs.Open(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}

		values, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}

		for key, value := range values {
			if os.Getenv(key) != "" {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}
