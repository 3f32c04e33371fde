package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/koba/db-sync/internal/dialect"
)

// Config holds database connection configuration
type Config struct {
	Type     string `mapstructure:"type"` // mysql, postgres, sqlserver or sqlite
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"name"` // database name, or the file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// DSN overrides every other connection setting when set.
	DSN string `mapstructure:"dsn"`
}

// DefaultPort returns the usual port of the database type.
func DefaultPort(dbType string) string {
	switch strings.ToLower(dbType) {
	case "mysql", "mariadb":
		return "3306"
	case "postgres", "postgresql", "pgsql":
		return "5432"
	case "sqlserver", "mssql":
		return "1433"
	}
	return ""
}

// DataSourceName builds the driver specific connection string.
func (c Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	d, err := dialect.Get(c.Type)
	if err != nil {
		return "", err
	}

	port := c.Port
	if port == "" {
		port = DefaultPort(c.Type)
	}

	switch d.Name() {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.Host, port)
		cfg.DBName = c.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host,
			port,
			c.User,
			c.Password,
			c.Database,
		), nil
	case "sqlserver":
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, port),
			RawQuery: url.Values{"database": {c.Database}}.Encode(),
		}
		return u.String(), nil
	case "sqlite":
		if c.Database == "" {
			return "", fmt.Errorf("sqlite requires a database file")
		}
		return c.Database, nil
	}
	return "", fmt.Errorf("unsupported database type: %s", c.Type)
}

// Open connects to the configured database.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Driver, error) {
	d, err := dialect.Get(config.Type)
	if err != nil {
		return nil, err
	}

	dsn, err := config.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name(), err)
	}

	// a single connection keeps transactions and savepoints on one session
	if d.Name() == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	return NewDriver(db, d, logger), nil
}
