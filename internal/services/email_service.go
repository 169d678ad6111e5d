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
	"github.com/dockeep/dockeep/internal/models"
)

// AWSSESMailer sends security alert emails using AWS SES.
type AWSSESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESMailer creates a new AWS SES mailer
func NewAWSSESMailer(region, fromAddress string, logger *slog.Logger) (*AWSSESMailer, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendLockoutWarning tells the account holder their account hit the
// failed-attempt threshold and will stay locked for the window duration.
func (s *AWSSESMailer) SendLockoutWarning(ctx context.Context, email, name string, window time.Duration) error {
	minutes := int(window.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Too Many Failed Sign-In Attempts</h1>
        </div>
        <div class="content">
            <p>Hi %s,</p>
            <p>Someone made repeated failed attempts to sign in to your dockeep account. Sign-in from that location is now blocked for about %d minutes.</p>
            <div class="warning">
                <strong>Was this you?</strong> If you forgot your password, wait for the block to expire and reset it from the sign-in page.
            </div>
            <p><strong>Wasn't you?</strong><br>
            No one has accessed your documents. We recommend changing your password as a precaution.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, name, minutes)

	textBody := fmt.Sprintf(`Too Many Failed Sign-In Attempts

Hi %s,

Someone made repeated failed attempts to sign in to your dockeep account. Sign-in from that location is now blocked for about %d minutes.

Was this you? If you forgot your password, wait for the block to expire and reset it from the sign-in page.

Wasn't you? No one has accessed your documents. We recommend changing your password as a precaution.

This is an automated message. Please do not reply to this email.
`, name, minutes)

	return s.send(ctx, email, "Security alert: too many failed sign-in attempts", htmlBody, textBody)
}

// SendNewDeviceAlert tells the account holder their account was signed in to
// from a device not seen before.
func (s *AWSSESMailer) SendNewDeviceAlert(ctx context.Context, email, name string, device models.DeviceSignals, at time.Time) error {
	location := device.Location
	if location == "" {
		location = "an unknown location"
	}
	platform := device.Platform
	if platform == "" {
		platform = "an unrecognized device"
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .details { background-color: #f8f9fa; padding: 10px; border-radius: 4px; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>New Sign-In to Your Account</h1>
        </div>
        <div class="content">
            <p>Hi %s,</p>
            <p>Your dockeep account was just signed in to from a device we have not seen before:</p>
            <div class="details">
                <p><strong>Device:</strong> %s<br>
                <strong>Browser:</strong> %s<br>
                <strong>Location:</strong> %s<br>
                <strong>Time:</strong> %s</p>
            </div>
            <p><strong>Wasn't you?</strong><br>
            Change your password immediately and sign out of all devices from your account settings.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, name, platform, device.UserAgent, location, at.Format(time.RFC1123))

	textBody := fmt.Sprintf(`New Sign-In to Your Account

Hi %s,

Your dockeep account was just signed in to from a device we have not seen before:

Device:   %s
Browser:  %s
Location: %s
Time:     %s

Wasn't you? Change your password immediately and sign out of all devices from your account settings.

This is an automated message. Please do not reply to this email.
`, name, platform, device.UserAgent, location, at.Format(time.RFC1123))

	return s.send(ctx, email, "Security alert: new sign-in to your account", htmlBody, textBody)
}

func (s *AWSSESMailer) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("email", email),
		slog.String("message_id", *result.MessageId))

	return nil
}

// LogMailer writes alerts to the log instead of sending mail. Used in
// development and tests where SES delivery is disabled.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendLockoutWarning(ctx context.Context, email, name string, window time.Duration) error {
	m.logger.Info("lockout warning (email delivery disabled)",
		slog.String("email", email),
		slog.Duration("window", window))
	return nil
}

func (m *LogMailer) SendNewDeviceAlert(ctx context.Context, email, name string, device models.DeviceSignals, at time.Time) error {
	m.logger.Info("new device alert (email delivery disabled)",
		slog.String("email", email),
		slog.String("platform", device.Platform))
	return nil
}
