package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/chat-backend/modules/auth"
	"github.com/example/chat-backend/modules/ratelimit"
	"github.com/example/chat-backend/modules/room"
	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const msgTooManyRequests = "Too many attempts, please try again later."

// Options configures the HTTP server.
type Options struct {
	Port              int
	AllowedOrigins    string
	FrontendURL       string
	RequireActivation bool
	// AuthRequests and AuthWindow bound signup and login attempts per client IP.
	AuthRequests int
	AuthWindow   time.Duration
}

// APIModule is the HTTP API module.
type APIModule struct {
	opts     Options
	app      *fiber.App
	auth     auth.AuthPort
	rooms    room.RoomPort
	realtime Realtime
	limits   *ratelimit.PluginModule
	storage  fiber.Storage
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.UsePluginModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule. The realtime module is passed directly
// because live connections cannot cross the service container.
func NewModule(opts Options, rt Realtime) *APIModule {
	if opts.Port == 0 {
		opts.Port = 3000
	}
	if opts.AllowedOrigins == "" {
		opts.AllowedOrigins = "*"
	}
	if opts.AuthRequests <= 0 {
		opts.AuthRequests = 10
	}
	if opts.AuthWindow <= 0 {
		opts.AuthWindow = time.Minute
	}
	return &APIModule{opts: opts, realtime: rt}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "room"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.auth = auth.NewAuthAdapter(container)
	case "room":
		m.rooms = room.NewRoomAdapter(container)
	}
}

// SetPlugin picks up the Redis storage for the signup and login limiter.
func (m *APIModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != ratelimit.Alias {
		return
	}
	if p, ok := plugin.(*ratelimit.PluginModule); ok {
		m.limits = p
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.auth == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.rooms == nil {
		return fmt.Errorf("room dependency not set")
	}

	// The plugin only exposes storage after its own Start.
	if m.limits != nil {
		m.storage = m.limits.Storage()
	}
	if m.storage == nil {
		log.Println("[api] Auth rate limiting uses in-memory storage")
	}

	m.app = NewApp(NewHandlers(m.auth, m.rooms, m.realtime, m.opts.FrontendURL), m.opts, m.storage)

	addr := fmt.Sprintf(":%d", m.opts.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	log.Printf("[api] HTTP server started on %s", addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "server not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"port":            m.opts.Port,
			"redis_limiter":   m.storage != nil,
			"require_active":  m.opts.RequireActivation,
			"allowed_origins": m.opts.AllowedOrigins,
		},
	}
}

// NewApp builds the Fiber app with every route. A nil storage keeps the
// auth limiter in memory.
func NewApp(handlers *Handlers, opts Options, storage fiber.Storage) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Chat Backend",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	authLimiter := limiter.New(limiter.Config{
		Max:        opts.AuthRequests,
		Expiration: opts.AuthWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "too_many_requests",
				Message: msgTooManyRequests,
			})
		},
		Storage:           storage,
		LimiterMiddleware: limiter.SlidingWindow{},
	})

	app.Get("/health", handlers.Health)

	// WebSocket: authenticate, then upgrade
	app.Use("/ws", handlers.Handshake)
	app.Get("/ws", websocket.New(handlers.ServeSocket))

	users := app.Group("/api/users")
	users.Get("/", handlers.ListUsers)
	users.Post("/signup", authLimiter, handlers.Signup)
	users.Post("/login", authLimiter, handlers.Login)
	users.Get("/activate/:token", handlers.Activate)
	users.Delete("/:uid", handlers.DeleteAccount)

	requireAuth := AuthMiddleware(handlers.auth)
	users.Get("/resendVerificationEmail", requireAuth, handlers.ResendVerification)
	users.Post("/refreshToken", requireAuth, handlers.RefreshToken)

	chat := app.Group("/api/chat", requireAuth, RequireActive(opts.RequireActivation))
	chat.Get("/", handlers.ListMyRooms)
	chat.Get("/all", handlers.ListAllRooms)
	chat.Get("/byName/:name", handlers.GetRoomByName)
	chat.Post("/newRoom", handlers.CreateRoom)
	chat.Post("/addUsers/:roomID", handlers.AddUsers)
	chat.Post("/addUser/:roomID", handlers.AddUser)
	chat.Post("/removeUser/:roomID", handlers.RemoveUser)
	chat.Get("/:id", handlers.GetRoom)
	chat.Patch("/:id", handlers.UpdateRoom)
	chat.Delete("/:id", handlers.DeleteRoom)

	return app
}
