package ratelimit

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
)

// Alias is the plugin alias modules receive in SetPlugin.
const Alias = "ratelimit"

// Key prefixes in Redis.
const (
	ChatKeyPrefix = "chat:ratelimit:"
	pingTimeout   = 2 * time.Second
)

// PluginConfig configures the Redis connection and the chat limit.
type PluginConfig struct {
	Addr     string
	Password string
	DB       int
	Chat     Config
}

// PluginModule owns the Redis connection shared by the socket chat limiter
// and the HTTP limiter storage. Without a reachable Redis it stays disabled
// and every check passes.
type PluginModule struct {
	config    PluginConfig
	client    *redis.Client
	storage   *fiberredis.Storage
	guard     *Guard
	container types.ServiceContainer
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates the plugin. Redis is contacted in Start.
func NewPluginModule(config PluginConfig, logger types.Logger) *PluginModule {
	logger = logger.WithModule(Alias)
	return &PluginModule{
		config: config,
		guard:  NewGuard(nil, logger),
		logger: logger,
	}
}

// Name returns the plugin name.
func (p *PluginModule) Name() string {
	return Alias
}

// Start connects to Redis when an address is configured.
func (p *PluginModule) Start(ctx context.Context) error {
	if p.config.Addr == "" {
		p.logger.Info("Redis not configured, rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.config.Addr,
		Password: p.config.Password,
		DB:       p.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		p.logger.Warn("Redis unreachable, rate limiting disabled", "addr", p.config.Addr, "error", err)
		return nil
	}

	// The storage constructor panics on connection failure, so it is only
	// built after a successful ping.
	host, port := parseRedisAddr(p.config.Addr)
	p.storage = fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		Password: p.config.Password,
		Database: p.config.DB,
	})

	p.client = client
	p.guard = NewGuard(NewSlidingWindowLimiter(client, p.config.Chat, ChatKeyPrefix), p.logger)
	p.logger.Info("Connected to Redis",
		"addr", p.config.Addr,
		"chatLimit", p.config.Chat.Limit,
		"chatWindow", p.config.Chat.Window)
	return nil
}

// Stop closes the Redis connections.
func (p *PluginModule) Stop(_ context.Context) error {
	var firstErr error
	if p.storage != nil {
		if err := p.storage.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close limiter storage: %w", err)
		}
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	p.logger.Info("Plugin stopped")
	return firstErr
}

// SetContainer sets the service container for this plugin.
func (p *PluginModule) SetContainer(container types.ServiceContainer) {
	p.container = container
}

// Container returns the service container for this plugin.
func (p *PluginModule) Container() types.ServiceContainer {
	return p.container
}

// ChatGuard returns the guard for socket chat messages. It is never nil.
func (p *PluginModule) ChatGuard() *Guard {
	return p.guard
}

// Storage returns the Redis storage for Fiber's limiter middleware, or nil
// when Redis is disabled.
func (p *PluginModule) Storage() fiber.Storage {
	if p.storage == nil {
		return nil
	}
	return p.storage
}

// Health reports the Redis state. A disabled limiter is healthy.
func (p *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	if p.client == nil {
		return mono.HealthStatus{
			Healthy: true,
			Message: "disabled",
		}
	}
	if err := p.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"redis_addr":  p.config.Addr,
			"chat_limit":  p.config.Chat.Limit,
			"chat_window": p.config.Chat.Window.String(),
		},
	}
}

// parseRedisAddr splits "host:port", falling back to 127.0.0.1:6379.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
