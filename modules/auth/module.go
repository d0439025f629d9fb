package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/events"
	"github.com/example/chat-backend/modules/database"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Options configures the auth module.
type Options struct {
	JWT        JWTConfig
	BackendURL string
	// BcryptCost overrides DefaultBcryptCost when non-zero.
	BcryptCost int
	// Mailer defaults to a LogMailer.
	Mailer Mailer
}

// AuthModule provides account and token services.
type AuthModule struct {
	opts     Options
	db       *database.PluginModule
	service  *AuthService
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*AuthModule)(nil)
	_ mono.UsePluginModule       = (*AuthModule)(nil)
	_ mono.ServiceProviderModule = (*AuthModule)(nil)
	_ mono.EventBusAwareModule   = (*AuthModule)(nil)
	_ mono.EventEmitterModule    = (*AuthModule)(nil)
	_ mono.HealthCheckableModule = (*AuthModule)(nil)
)

// NewModule creates a new AuthModule.
func NewModule(opts Options, logger types.Logger) *AuthModule {
	return &AuthModule{
		opts:   opts,
		logger: logger.WithModule("auth"),
	}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// SetPlugin receives the database plugin from the framework.
func (m *AuthModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != database.Alias {
		return
	}
	db, ok := plugin.(*database.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for database",
			"alias", alias,
			"expected", "*database.PluginModule")
		return
	}
	m.db = db
}

// SetEventBus receives the EventBus from the framework.
func (m *AuthModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *AuthModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserDeletedV1.ToBase(),
	}
}

// Start migrates the users table and builds the service.
func (m *AuthModule) Start(_ context.Context) error {
	if m.db == nil || m.db.DB() == nil {
		return fmt.Errorf("required plugin %q not registered", database.Alias)
	}

	db := m.db.DB()
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	hasher := NewPasswordHasher()
	if m.opts.BcryptCost != 0 {
		hasher = NewPasswordHasherWithCost(m.opts.BcryptCost)
	}
	mailer := m.opts.Mailer
	if mailer == nil {
		mailer = NewLogMailer(m.logger)
	}

	m.service = NewAuthService(
		NewUserRepository(db),
		hasher,
		NewJWTManager(m.opts.JWT),
		mailer,
		m.opts.BackendURL,
		m.logger,
	)

	m.logger.Info("Auth module started", "issuer", m.opts.JWT.Issuer)
	return nil
}

// Stop shuts down the module. The connection belongs to the database plugin.
func (m *AuthModule) Stop(_ context.Context) error {
	m.logger.Info("Auth module stopped")
	return nil
}

// Health reports whether the service is ready.
func (m *AuthModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
	}
}

// Service returns the in-process service.
func (m *AuthModule) Service() *AuthService {
	return m.service
}

// RegisterServices registers request-reply services in the service container.
func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSignup, json.Unmarshal, json.Marshal, m.handleSignup,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSignup, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLogin, json.Unmarshal, json.Marshal, m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLogin, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceActivate, json.Unmarshal, json.Marshal, m.handleActivate,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceActivate, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceResendVerification, json.Unmarshal, json.Marshal, m.handleResendVerification,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceResendVerification, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRefreshToken, json.Unmarshal, json.Marshal, m.handleRefresh,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRefreshToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceValidateToken, json.Unmarshal, json.Marshal, m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteAccount, json.Unmarshal, json.Marshal, m.handleDeleteAccount,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteAccount, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListUsers, json.Unmarshal, json.Marshal, m.handleListUsers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListUsers, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetUser, json.Unmarshal, json.Marshal, m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetUser, err)
	}

	m.logger.Info("Registered services",
		"services", []string{
			ServiceSignup, ServiceLogin, ServiceActivate, ServiceResendVerification,
			ServiceRefreshToken, ServiceValidateToken, ServiceDeleteAccount,
			ServiceListUsers, ServiceGetUser,
		})
	return nil
}

// Domain failures travel in the response body so the error kind survives
// the hop; the transport error is reserved for infrastructure failures.

func (m *AuthModule) handleSignup(ctx context.Context, req SignupRequest, _ *mono.Msg) (SessionResponse, error) {
	return m.sessionResponse(m.service.Signup(ctx, req.Name, req.Email, req.Password))
}

func (m *AuthModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (SessionResponse, error) {
	return m.sessionResponse(m.service.Login(ctx, req.Email, req.Password))
}

func (m *AuthModule) handleRefresh(ctx context.Context, req UserIDRequest, _ *mono.Msg) (SessionResponse, error) {
	return m.sessionResponse(m.service.Refresh(ctx, req.UserID))
}

func (m *AuthModule) handleActivate(ctx context.Context, req ActivateRequest, _ *mono.Msg) (StatusResponse, error) {
	if err := m.service.Activate(ctx, req.Token); err != nil {
		return StatusResponse{Error: m.payload(err)}, nil
	}
	return StatusResponse{}, nil
}

func (m *AuthModule) handleResendVerification(ctx context.Context, req UserIDRequest, _ *mono.Msg) (StatusResponse, error) {
	if err := m.service.ResendVerification(ctx, req.UserID); err != nil {
		return StatusResponse{Error: m.payload(err)}, nil
	}
	return StatusResponse{}, nil
}

func (m *AuthModule) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	identity, err := m.service.Authenticate(ctx, req.Token)
	if err != nil {
		return ValidateTokenResponse{
			Valid: false,
			Error: m.payload(err),
		}, nil
	}
	return ValidateTokenResponse{
		Valid:    true,
		Identity: identity,
	}, nil
}

func (m *AuthModule) handleDeleteAccount(ctx context.Context, req DeleteAccountRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.DeleteAccount(ctx, req.UserID, req.Email, req.Password)
	if err != nil {
		return UserResponse{Error: m.payload(err)}, nil
	}

	event := events.UserDeletedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Rooms:     user.ChatRooms,
		Timestamp: time.Now(),
	}
	if err := events.UserDeletedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserDeleted event", "userID", user.ID, "error", err)
	}

	m.logger.Info("Account deleted", "userID", user.ID)
	dto := ToUserDTO(user)
	return UserResponse{User: &dto}, nil
}

func (m *AuthModule) handleListUsers(ctx context.Context, _ ListUsersRequest, _ *mono.Msg) (ListUsersResponse, error) {
	users, err := m.service.ListUsers(ctx)
	if err != nil {
		return ListUsersResponse{Error: m.payload(err)}, nil
	}
	dtos := make([]UserDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, ToUserDTO(&users[i]))
	}
	return ListUsersResponse{Users: dtos}, nil
}

func (m *AuthModule) handleGetUser(ctx context.Context, req UserIDRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.GetUser(ctx, req.UserID)
	if err != nil {
		return UserResponse{Error: m.payload(err)}, nil
	}
	dto := ToUserDTO(user)
	return UserResponse{User: &dto}, nil
}

func (m *AuthModule) sessionResponse(result *AuthResult, err error) (SessionResponse, error) {
	if err != nil {
		return SessionResponse{Error: m.payload(err)}, nil
	}
	return SessionResponse{
		UserID: result.UserID,
		Email:  result.Email,
		Token:  result.Token,
	}, nil
}

// payload logs failures that will reach the client as a generic message.
func (m *AuthModule) payload(err error) *apperr.Payload {
	switch apperr.KindOf(err) {
	case apperr.KindStore, apperr.KindInternal:
		m.logger.Error("Auth operation failed", "error", err)
	}
	return apperr.ToPayload(err)
}
