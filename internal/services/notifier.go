package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dockeep/dockeep/internal/models"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
)

// Mailer is the outbound message sink behind the notifier. Production uses
// AWS SES; tests substitute a recorder.
type Mailer interface {
	SendLockoutWarning(ctx context.Context, email, name string, window time.Duration) error
	SendNewDeviceAlert(ctx context.Context, email, name string, device models.DeviceSignals, at time.Time) error
}

// Notifier dispatches security alert messages. Every send is fire-and-forget
// relative to the login decision: sink failures are logged and absorbed, never
// returned to the caller, and dispatch never delays the auth result.
type Notifier struct {
	mailer      Mailer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	window      time.Duration
	sendTimeout time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a notifier. window is reported in lockout warnings so
// the recipient knows how long the lock lasts.
func NewNotifier(mailer Mailer, window time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *Notifier {
	return &Notifier{
		mailer:      mailer,
		logger:      logger,
		auditLogger: auditLogger,
		window:      window,
		sendTimeout: 10 * time.Second,
	}
}

// LockoutWarning alerts the account holder that their account hit the
// failed-attempt threshold. The login service calls this exactly once per
// window, on the attempt that crosses the threshold.
func (n *Notifier) LockoutWarning(user *models.User, origin string) {
	n.dispatch("lockout_warning", user.ID, func(ctx context.Context) error {
		return n.mailer.SendLockoutWarning(ctx, user.Email, user.Name, n.window)
	})

	n.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "lockout_warning_sent",
		UserID:    user.ID,
		IPAddress: origin,
		Success:   false,
	})
}

// NewDeviceAlert alerts the account holder that their account was used from a
// device fingerprint not seen before.
func (n *Notifier) NewDeviceAlert(user *models.User, device models.DeviceSignals) {
	at := time.Now().UTC()
	n.dispatch("new_device_alert", user.ID, func(ctx context.Context) error {
		return n.mailer.SendNewDeviceAlert(ctx, user.Email, user.Name, device, at)
	})
}

// Wait blocks until all in-flight sends have finished. Used by graceful
// shutdown and tests; login callers never wait.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(kind, userID string, send func(ctx context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		// Detached from the request context: the login response must not
		// wait on the sink, and the sink should not be cancelled by it.
		ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			n.logger.Error("notification delivery failed",
				slog.String("notification", kind),
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}()
}
