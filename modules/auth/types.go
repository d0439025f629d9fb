package auth

import (
	"time"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/user"
)

// Service names registered in the service container.
const (
	ServiceSignup             = "signup"
	ServiceLogin              = "login"
	ServiceActivate           = "activate"
	ServiceResendVerification = "resend-verification"
	ServiceRefreshToken       = "refresh-token"
	ServiceValidateToken      = "validate-token"
	ServiceDeleteAccount      = "delete-account"
	ServiceListUsers          = "list-users"
	ServiceGetUser            = "get-user"
)

// SignupRequest represents a signup request.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries a session token for signup, login and refresh.
type SessionResponse struct {
	UserID string          `json:"user_id,omitempty"`
	Email  string          `json:"email,omitempty"`
	Token  string          `json:"token,omitempty"`
	Error  *apperr.Payload `json:"error,omitempty"`
}

// ActivateRequest carries the token from an activation link.
type ActivateRequest struct {
	Token string `json:"token"`
}

// UserIDRequest addresses a single user.
type UserIDRequest struct {
	UserID string `json:"user_id"`
}

// StatusResponse is returned by operations without a result body.
type StatusResponse struct {
	Error *apperr.Payload `json:"error,omitempty"`
}

// ValidateTokenRequest represents a token validation request.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse represents a token validation response.
type ValidateTokenResponse struct {
	Valid    bool             `json:"valid"`
	Identity *domain.Identity `json:"identity,omitempty"`
	Error    *apperr.Payload  `json:"error,omitempty"`
}

// DeleteAccountRequest represents an account deletion request.
type DeleteAccountRequest struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse carries a single user.
type UserResponse struct {
	User  *UserDTO        `json:"user,omitempty"`
	Error *apperr.Payload `json:"error,omitempty"`
}

// ListUsersRequest is empty; all users are returned.
type ListUsersRequest struct{}

// ListUsersResponse carries every user.
type ListUsersResponse struct {
	Users []UserDTO       `json:"users"`
	Error *apperr.Payload `json:"error,omitempty"`
}

// UserDTO is the wire form of a user. The password hash never crosses
// module boundaries.
type UserDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	ChatRooms []string  `json:"chatRooms"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToUserDTO converts a user entity.
func ToUserDTO(u *domain.User) UserDTO {
	rooms := u.ChatRooms
	if rooms == nil {
		rooms = []string{}
	}
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Active:    u.Active,
		ChatRooms: rooms,
		CreatedAt: u.CreatedAt,
	}
}

// ToEntity converts back to a user entity without credentials.
func (d UserDTO) ToEntity() *domain.User {
	return &domain.User{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		Active:    d.Active,
		ChatRooms: d.ChatRooms,
		CreatedAt: d.CreatedAt,
	}
}
