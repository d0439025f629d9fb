// Package database provides the GORM connection as a mono plugin so that the
// auth and room modules share one database and can write users and rooms in
// a single transaction.
package database

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Alias is the plugin alias modules receive in SetPlugin.
const Alias = "database"

// Config selects the dialector and DSN.
type Config struct {
	Driver string
	DSN    string
}

// PluginModule owns the *gorm.DB for the lifetime of the application.
// Plugins start before and stop after regular modules.
type PluginModule struct {
	config    Config
	db        *gorm.DB
	container types.ServiceContainer
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates the plugin. The connection is opened in Start.
func NewPluginModule(config Config) *PluginModule {
	return &PluginModule{config: config}
}

// Name returns the plugin name.
func (p *PluginModule) Name() string {
	return "database"
}

// Start opens the connection.
func (p *PluginModule) Start(_ context.Context) error {
	db, err := Open(p.config)
	if err != nil {
		return err
	}
	p.db = db
	log.Printf("[database] Connected (driver: %s)", p.config.Driver)
	return nil
}

// Stop closes the connection.
func (p *PluginModule) Stop(_ context.Context) error {
	if p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("[database] Plugin stopped")
	return nil
}

// SetContainer sets the service container for this plugin.
func (p *PluginModule) SetContainer(container types.ServiceContainer) {
	p.container = container
}

// Container returns the service container for this plugin.
func (p *PluginModule) Container() types.ServiceContainer {
	return p.container
}

// DB returns the shared connection. It is nil before Start.
func (p *PluginModule) DB() *gorm.DB {
	return p.db
}

// Health pings the database.
func (p *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	if p.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	stats := sqlDB.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":           p.config.Driver,
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
		},
	}
}

// Open connects with the configured dialector. SQLite is limited to a single
// connection: writers serialize on it and ":memory:" databases stay shared.
func Open(config Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres":
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Driver == "" || config.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// OpenInMemory returns an isolated SQLite database for tests.
func OpenInMemory() (*gorm.DB, error) {
	return Open(Config{Driver: "sqlite", DSN: ":memory:"})
}
