package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/modules/database"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type sentMail struct {
	to, name, link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingMailer) SendVerification(_ context.Context, to, name, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{to: to, name: name, link: link})
	return nil
}

func (r *recordingMailer) last() sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func setupService(t *testing.T) (*AuthService, *recordingMailer) {
	t.Helper()

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mailer := &recordingMailer{}
	svc := NewAuthService(
		NewUserRepository(db),
		NewPasswordHasherWithCost(bcrypt.MinCost),
		NewJWTManager(testJWTConfig()),
		mailer,
		"http://api.test/",
		&mockLogger{},
	)
	return svc, mailer
}

func TestAuthService_Signup(t *testing.T) {
	svc, mailer := setupService(t)
	ctx := context.Background()

	result, err := svc.Signup(ctx, "  ann ", " Ann@Example.COM ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", result.Email)
	assert.NotEmpty(t, result.Token)

	user, err := svc.GetUser(ctx, result.UserID)
	require.NoError(t, err)
	assert.Equal(t, "ann", user.Name)
	assert.False(t, user.Active, "new accounts start inactive")
	assert.NotEqual(t, "secret1", user.PasswordHash)

	mail := mailer.last()
	assert.Equal(t, "ann@example.com", mail.to)
	assert.True(t, strings.HasPrefix(mail.link, "http://api.test/api/users/activate/"), mail.link)
}

func TestAuthService_SignupValidation(t *testing.T) {
	svc, _ := setupService(t)

	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{name: "empty name", userName: "  ", email: "a@b.com", password: "secret1"},
		{name: "name too long", userName: strings.Repeat("n", MaxNameLength+1), email: "a@b.com", password: "secret1"},
		{name: "invalid email", userName: "ann", email: "not-an-email", password: "secret1"},
		{name: "display name email", userName: "ann", email: "Ann <a@b.com>", password: "secret1"},
		{name: "short password", userName: "ann", email: "a@b.com", password: "12345"},
		{name: "long password", userName: "ann", email: "a@b.com", password: strings.Repeat("p", MaxPasswordLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.userName, tt.email, tt.password)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestAuthService_SignupDuplicate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "other", "ANN@example.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate email: %v", err)

	_, err = svc.Signup(ctx, "ann", "other@example.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate name: %v", err)
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, signup.UserID, result.UserID)

	identity, err := svc.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "ann", identity.Name)

	_, err = svc.Login(ctx, "ann@example.com", "wrong-password")
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
	assert.Equal(t, msgUnknownLogin, apperr.PublicMessage(err))

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestAuthService_Activate(t *testing.T) {
	svc, mailer := setupService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	link := mailer.last().link
	token := link[strings.LastIndex(link, "/")+1:]

	// A session token is not an activation token.
	err = svc.Activate(ctx, signup.Token)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))

	require.NoError(t, svc.Activate(ctx, token))

	identity, err := svc.Authenticate(ctx, signup.Token)
	require.NoError(t, err)
	assert.True(t, identity.Active)

	err = svc.ResendVerification(ctx, signup.UserID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestAuthService_ResendVerification(t *testing.T) {
	svc, mailer := setupService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ResendVerification(ctx, signup.UserID))
	assert.Len(t, mailer.sent, 2)

	err = svc.ResendVerification(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAuthService_DeleteAccount(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	ann, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)
	bob, err := svc.Signup(ctx, "bob", "bob@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.DeleteAccount(ctx, bob.UserID, "ann@example.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization), "uid mismatch: %v", err)

	_, err = svc.DeleteAccount(ctx, ann.UserID, "ann@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))

	deleted, err := svc.DeleteAccount(ctx, ann.UserID, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, ann.UserID, deleted.ID)

	// Tokens of a deleted account stop working.
	_, err = svc.Authenticate(ctx, ann.Token)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, _ := setupService(t)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "missing token", token: "", message: msgSignIn},
		{name: "garbage token", token: "abc.def.ghi", message: msgBadToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindAuthentication))
			assert.Equal(t, tt.message, apperr.PublicMessage(err))
		})
	}
}

func TestAuthService_Refresh(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, "ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, signup.UserID)
	require.NoError(t, err)
	assert.Equal(t, signup.UserID, refreshed.UserID)

	identity, err := svc.Authenticate(ctx, refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, signup.UserID, identity.UserID)
}
