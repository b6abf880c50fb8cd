package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender delivers password reset mail.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// SESEmailSender sends mail through AWS SES.
type SESEmailSender struct {
	client       *ses.Client
	fromAddress  string
	resetURLBase string
	logger       *slog.Logger
}

func NewSESEmailSender(region, fromAddress, resetURLBase string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &SESEmailSender{
		client:       ses.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		resetURLBase: resetURLBase,
		logger:       logger,
	}, nil
}

func (s *SESEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.resetURLBase, token)
	minutes := int(time.Until(expiresAt).Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Password reset requested</h2>
    <p>A password reset was requested for your Palletline account.</p>
    <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Reset password</a></p>
    <p>This link expires in %d minutes and can be used once.</p>
    <p>If you did not request this, you can ignore this email. Your password has not been changed.</p>
</body>
</html>`, resetLink, minutes)

	textBody := fmt.Sprintf(
		"A password reset was requested for your Palletline account.\n\n"+
			"Reset link (expires in %d minutes, single use): %s\n\n"+
			"If you did not request this, ignore this email.", minutes, resetLink)

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Reset your Palletline password")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.Info("password reset email sent")
	return nil
}

// LogEmailSender logs instead of sending. Used in development and when
// email delivery is disabled.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.logger.Info("password reset email (delivery disabled)",
		"expires_at", expiresAt.UTC().Format(time.RFC3339),
	)
	return nil
}
