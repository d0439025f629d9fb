package auth

import (
	"errors"
	"time"

	domain "github.com/example/chat-backend/domain/user"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed, tampered with or of the wrong type.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

const (
	tokenTypeSession    = "session"
	tokenTypeActivation = "activation"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	SecretKey          string
	SessionDuration    time.Duration
	ActivationDuration time.Duration
	Issuer             string
}

// DefaultJWTConfig returns the token lifetimes the clients expect:
// seven days for sessions and five for account activation.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		SecretKey:          "change-me-in-production",
		SessionDuration:    7 * 24 * time.Hour,
		ActivationDuration: 5 * 24 * time.Hour,
		Issuer:             "chat-backend",
	}
}

// JWTClaims represents the custom claims for both token kinds. Email and Name
// are empty on activation tokens.
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies signed tokens.
type JWTManager struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWTManager with the given configuration.
func NewJWTManager(config JWTConfig) *JWTManager {
	return &JWTManager{
		config: config,
		now:    time.Now,
	}
}

// IssueSessionToken signs a session token carrying the user's identity.
func (m *JWTManager) IssueSessionToken(user *domain.User) (string, error) {
	return m.generateToken(JWTClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		TokenType: tokenTypeSession,
	}, m.config.SessionDuration)
}

// IssueActivationToken signs a token used by the account activation link.
func (m *JWTManager) IssueActivationToken(userID string) (string, error) {
	return m.generateToken(JWTClaims{
		UserID:    userID,
		TokenType: tokenTypeActivation,
	}, m.config.ActivationDuration)
}

func (m *JWTManager) generateToken(claims JWTClaims, duration time.Duration) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.config.Issuer,
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken validates the signature and lifetime and returns the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifySessionToken validates a session token.
func (m *JWTManager) VerifySessionToken(tokenString string) (*JWTClaims, error) {
	return m.validateType(tokenString, tokenTypeSession)
}

// VerifyActivationToken validates an activation token.
func (m *JWTManager) VerifyActivationToken(tokenString string) (*JWTClaims, error) {
	return m.validateType(tokenString, tokenTypeActivation)
}

func (m *JWTManager) validateType(tokenString, tokenType string) (*JWTClaims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// SessionDuration returns the session token lifetime in seconds.
func (m *JWTManager) SessionDuration() int64 {
	return int64(m.config.SessionDuration.Seconds())
}
