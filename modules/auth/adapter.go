package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/user"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort defines the interface for account and token operations.
// This is the port that other modules use to access auth functionality.
// *AuthService implements it in-process.
type AuthPort interface {
	Signup(ctx context.Context, name, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Activate(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userID string) (*AuthResult, error)
	DeleteAccount(ctx context.Context, uid, email, password string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

var (
	_ AuthPort = (*AuthAdapter)(nil)
	_ AuthPort = (*AuthService)(nil)
)

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	if container == nil {
		panic("auth: ServiceContainer is nil")
	}
	return &AuthAdapter{
		container: container,
	}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("%s request failed: %w", service, err))
	}
	return nil
}

// Signup creates an account.
func (a *AuthAdapter) Signup(ctx context.Context, name, email, password string) (*AuthResult, error) {
	req := SignupRequest{Name: name, Email: email, Password: password}
	var resp SessionResponse
	if err := call(ctx, a.container, ServiceSignup, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// Login authenticates with email and password.
func (a *AuthAdapter) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	req := LoginRequest{Email: email, Password: password}
	var resp SessionResponse
	if err := call(ctx, a.container, ServiceLogin, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// Activate activates the account named by the token.
func (a *AuthAdapter) Activate(ctx context.Context, token string) error {
	req := ActivateRequest{Token: token}
	var resp StatusResponse
	if err := call(ctx, a.container, ServiceActivate, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}

// ResendVerification re-sends the activation mail.
func (a *AuthAdapter) ResendVerification(ctx context.Context, userID string) error {
	req := UserIDRequest{UserID: userID}
	var resp StatusResponse
	if err := call(ctx, a.container, ServiceResendVerification, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}

// Refresh issues a new session token.
func (a *AuthAdapter) Refresh(ctx context.Context, userID string) (*AuthResult, error) {
	req := UserIDRequest{UserID: userID}
	var resp SessionResponse
	if err := call(ctx, a.container, ServiceRefreshToken, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// DeleteAccount deletes the account.
func (a *AuthAdapter) DeleteAccount(ctx context.Context, uid, email, password string) (*domain.User, error) {
	req := DeleteAccountRequest{UserID: uid, Email: email, Password: password}
	var resp UserResponse
	if err := call(ctx, a.container, ServiceDeleteAccount, &req, &resp); err != nil {
		return nil, err
	}
	return resp.user()
}

// ListUsers returns every user.
func (a *AuthAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	req := ListUsersRequest{}
	var resp ListUsersResponse
	if err := call(ctx, a.container, ServiceListUsers, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, *u.ToEntity())
	}
	return users, nil
}

// Authenticate validates a session token and returns the caller's identity.
func (a *AuthAdapter) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse
	if err := call(ctx, a.container, ServiceValidateToken, &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Valid || resp.Identity == nil {
		if err := resp.Error.Err(); err != nil {
			return nil, err
		}
		return nil, apperr.Unauthenticated(msgBadToken)
	}
	return resp.Identity, nil
}

// GetUser retrieves a user by ID.
func (a *AuthAdapter) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	req := UserIDRequest{UserID: userID}
	var resp UserResponse
	if err := call(ctx, a.container, ServiceGetUser, &req, &resp); err != nil {
		return nil, err
	}
	return resp.user()
}

func (r *SessionResponse) result() (*AuthResult, error) {
	if err := r.Error.Err(); err != nil {
		return nil, err
	}
	return &AuthResult{UserID: r.UserID, Email: r.Email, Token: r.Token}, nil
}

func (r *UserResponse) user() (*domain.User, error) {
	if err := r.Error.Err(); err != nil {
		return nil, err
	}
	if r.User == nil {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	return r.User.ToEntity(), nil
}
