package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/user"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// Validation limits for accounts.
const (
	MaxNameLength     = 20
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
)

// User-facing messages.
const (
	msgInvalidSignup      = "Please provide a valid name, email, and password."
	msgInvalidCredentials = "Please provide a valid email and password."
	msgAccountExists      = "Unable to create an account, please try again"
	msgUnknownLogin       = "Couldn't find ya, are you sure you're spelling that right?"
	msgWrongAccount       = "Something's not right, please check your email and password and try again."
	msgSignIn             = "Please sign in or refresh!"
	msgSessionExpired     = "Your session has expired, please sign in again."
	msgBadToken           = "Authentication failed, please sign in again."
	msgBadActivation      = "That activation link is invalid or has expired."
	msgAlreadyActive      = "Your account is already active."
	msgUserNotFound       = "That user doesn't exist."
)

// AuthResult is returned by every operation that hands out a session token.
type AuthResult struct {
	UserID string
	Email  string
	Token  string
}

// AuthService handles account and token business logic.
type AuthService struct {
	repo       *UserRepository
	hasher     *PasswordHasher
	jwt        *JWTManager
	mailer     Mailer
	backendURL string
	logger     types.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo *UserRepository, hasher *PasswordHasher, jwt *JWTManager, mailer Mailer, backendURL string, logger types.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		hasher:     hasher,
		jwt:        jwt,
		mailer:     mailer,
		backendURL: backendURL,
		logger:     logger,
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Signup creates an inactive account, mails the activation link and returns
// a session token.
func (s *AuthService) Signup(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)

	if name == "" || utf8.RuneCountInString(name) > MaxNameLength ||
		!validEmail(email) ||
		len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return nil, apperr.Validation(msgInvalidSignup)
	}

	exists, err := s.repo.Exists(ctx, email, name)
	if err != nil {
		return nil, apperr.Store("", fmt.Errorf("failed to check user existence: %w", err))
	}
	if exists {
		return nil, apperr.Wrap(apperr.KindConflict, msgAccountExists, ErrUserExists)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("failed to hash password: %w", err))
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       false,
		ChatRooms:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, apperr.Wrap(apperr.KindConflict, msgAccountExists, err)
		}
		return nil, apperr.Store("", fmt.Errorf("failed to create user: %w", err))
	}

	// The account exists at this point; a failed mail is recoverable via resend.
	if err := s.sendActivation(ctx, user); err != nil {
		s.logger.Warn("Failed to send verification email", "userID", user.ID, "error", err)
	}

	return s.sessionFor(user)
}

// Login verifies credentials and returns a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) || password == "" {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return s.sessionFor(user)
}

// Activate marks the account named by an activation token as active.
func (s *AuthService) Activate(ctx context.Context, token string) error {
	claims, err := s.jwt.VerifyActivationToken(token)
	if err != nil {
		return apperr.Wrap(apperr.KindAuthentication, msgBadActivation, err)
	}

	if err := s.repo.SetActive(ctx, claims.UserID, true); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apperr.Wrap(apperr.KindNotFound, msgUserNotFound, err)
		}
		return apperr.Store("", fmt.Errorf("failed to activate user: %w", err))
	}
	return nil
}

// ResendVerification mails a fresh activation link.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Active {
		return apperr.Conflict(msgAlreadyActive)
	}
	return s.sendActivation(ctx, user)
}

// Refresh issues a new session token for an authenticated user.
func (s *AuthService) Refresh(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.sessionFor(user)
}

// DeleteAccount removes the account once credentials and uid agree. The
// deleted user is returned so callers can cascade room cleanup.
func (s *AuthService) DeleteAccount(ctx context.Context, uid, email, password string) (*domain.User, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) || password == "" {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user.ID != uid {
		return nil, apperr.Forbidden(msgWrongAccount)
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, msgUserNotFound, err)
		}
		return nil, apperr.Store("", fmt.Errorf("failed to delete user: %w", err))
	}
	return user, nil
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Store("", fmt.Errorf("failed to list users: %w", err))
	}
	return users, nil
}

// Authenticate verifies a session token and confirms the account still exists.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, apperr.Unauthenticated(msgSignIn)
	}

	claims, err := s.jwt.VerifySessionToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, apperr.Wrap(apperr.KindAuthentication, msgSessionExpired, err)
		}
		return nil, apperr.Wrap(apperr.KindAuthentication, msgBadToken, err)
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.KindAuthentication, msgSignIn, err)
		}
		return nil, apperr.Store("", fmt.Errorf("failed to find user: %w", err))
	}

	return &domain.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Active: user.Active,
	}, nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, msgUserNotFound, err)
		}
		return nil, apperr.Store("", fmt.Errorf("failed to find user: %w", err))
	}
	return user, nil
}

func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Unauthenticated(msgUnknownLogin)
		}
		return nil, apperr.Store("", fmt.Errorf("failed to find user: %w", err))
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.Unauthenticated(msgUnknownLogin)
	}
	return user, nil
}

func (s *AuthService) sendActivation(ctx context.Context, user *domain.User) error {
	token, err := s.jwt.IssueActivationToken(user.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("failed to issue activation token: %w", err))
	}
	if err := s.mailer.SendVerification(ctx, user.Email, user.Name, activationLink(s.backendURL, token)); err != nil {
		return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("failed to send verification email: %w", err))
	}
	return nil
}

func (s *AuthService) sessionFor(user *domain.User) (*AuthResult, error) {
	token, err := s.jwt.IssueSessionToken(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("failed to issue session token: %w", err))
	}
	return &AuthResult{
		UserID: user.ID,
		Email:  user.Email,
		Token:  token,
	}, nil
}
