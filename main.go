package main

import (
	"context"
	"log"
	"os"

	"github.com/example/chat-backend/config"
	"github.com/example/chat-backend/modules/api"
	"github.com/example/chat-backend/modules/auth"
	"github.com/example/chat-backend/modules/database"
	"github.com/example/chat-backend/modules/ratelimit"
	"github.com/example/chat-backend/modules/realtime"
	"github.com/example/chat-backend/modules/room"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Chat Backend - Fiber + WebSocket + GORM ===")

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Plugins start before and stop after every module.
	dbPlugin := database.NewPluginModule(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err := app.RegisterPlugin(dbPlugin, database.Alias); err != nil {
		log.Fatalf("Failed to register database plugin: %v", err)
	}

	limitPlugin := ratelimit.NewPluginModule(ratelimit.PluginConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Chat: ratelimit.Config{
			Limit:  cfg.RateLimit.ChatMessages,
			Window: cfg.RateLimit.ChatWindow,
		},
	}, logger)
	if err := app.RegisterPlugin(limitPlugin, ratelimit.Alias); err != nil {
		log.Fatalf("Failed to register rate limit plugin: %v", err)
	}

	authModule := auth.NewModule(auth.Options{
		JWT: auth.JWTConfig{
			SecretKey:          cfg.Auth.SecretKey,
			SessionDuration:    cfg.Auth.SessionTTL,
			ActivationDuration: cfg.Auth.ActivationTTL,
			Issuer:             cfg.Auth.Issuer,
		},
		BackendURL: cfg.HTTP.BackendURL,
	}, logger)

	roomModule := room.NewModule(room.Options{
		Hasher:          auth.NewPasswordHasher(),
		CleanupInterval: cfg.Cleanup.Interval,
		MaxIdle:         cfg.Cleanup.MaxIdle,
	}, logger)

	realtimeModule := realtime.NewModule(logger)

	// The socket gateway holds live connections, so the API module gets the
	// realtime module directly instead of through a service container.
	apiModule := api.NewModule(api.Options{
		Port:              cfg.HTTP.Port,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		FrontendURL:       cfg.HTTP.FrontendURL,
		RequireActivation: cfg.Auth.RequireActivation,
		AuthRequests:      cfg.RateLimit.AuthRequests,
		AuthWindow:        cfg.RateLimit.AuthWindow,
	}, realtimeModule)

	// - auth: accounts and session tokens (ServiceProviderModule + EventEmitterModule)
	// - room: rooms, membership and history (consumes UserDeleted)
	// - realtime: socket registry and chat protocol (depends on room, consumes membership events)
	// - api: Fiber HTTP and WebSocket server (depends on auth and room)
	app.Register(authModule)
	app.Register(roomModule)
	app.Register(realtimeModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	redis := "disabled (in-memory limits)"
	if cfg.Redis.Enabled() {
		redis = cfg.Redis.Addr
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - Database: %s", cfg.Database.Driver)
	log.Printf("  - Redis: %s", redis)
	log.Printf("  - Chat limit: %d messages per %s", cfg.RateLimit.ChatMessages, cfg.RateLimit.ChatWindow)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.HTTP.Port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  GET    /api/users                       - List users")
	log.Println("  POST   /api/users/signup                - Create an account")
	log.Println("  POST   /api/users/login                 - Sign in")
	log.Println("  GET    /api/users/activate/:token       - Activate an account")
	log.Println("  POST   /api/users/refreshToken          - Refresh a session token")
	log.Println("  GET    /api/chat                        - List your rooms")
	log.Println("  POST   /api/chat/newRoom                - Create a room")
	log.Println("  GET    /api/chat/:id                    - Room with history")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws?token=...):", cfg.HTTP.Port)
	log.Println("  Events: join, leave, chat, markAsRead, addUsersToRoom, addUserToRoom, removeUserFromRoom")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
