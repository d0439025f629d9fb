package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-monolith/mono/pkg/types"
)

const verificationSubject = "Please Verify Your Email - Friendly Chat"

// Mailer delivers account verification links.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
}

// LogMailer writes verification mails to the application log. It stands in
// for an outbound mail provider in development.
type LogMailer struct {
	logger types.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger types.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerification logs the verification link.
func (m *LogMailer) SendVerification(_ context.Context, to, name, link string) error {
	m.logger.Info("Verification email",
		"to", to,
		"subject", verificationSubject,
		"name", name,
		"link", link)
	return nil
}

// activationLink builds the URL the activation mail points at.
func activationLink(backendURL, token string) string {
	return fmt.Sprintf("%s/api/users/activate/%s", strings.TrimRight(backendURL, "/"), token)
}
