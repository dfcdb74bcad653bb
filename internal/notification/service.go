// Package notification delivers nudges to users: an in-app notification row
// always, plus a best-effort email when the side channel is enabled.
package notification

import (
	"context"

	"github.com/google/uuid"

	"opspulse_backend/internal/email"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/notification/inapp"
	"opspulse_backend/platform/logger"
)

// NudgeParams describes one nudge to deliver.
type NudgeParams struct {
	TenantID uuid.UUID
	User     identity.User
	Title    string
	Content  string
}

// Notifier creates and removes nudges.
type Notifier struct {
	inapp  *inapp.Repository
	sender email.Sender
	log    *logger.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(inappRepo *inapp.Repository, sender email.Sender, log *logger.Logger) *Notifier {
	return &Notifier{inapp: inappRepo, sender: sender, log: log}
}

// Nudge inserts the in-app notification and sends the email side channel.
// The email failing does not fail the nudge; the row is the durable part.
func (n *Notifier) Nudge(ctx context.Context, p NudgeParams) (inapp.Notification, error) {
	row, err := n.inapp.Create(ctx, inapp.CreateParams{
		TenantID: p.TenantID,
		UserID:   p.User.ID,
		Title:    p.Title,
		Content:  p.Content,
		Category: "nudge",
	})
	if err != nil {
		return inapp.Notification{}, err
	}

	if err := n.sender.SendNudge(ctx, p.User.Email, p.User.Name, p.Title, p.Content); err != nil {
		n.log.Error("nudge email failed", "error", err, "userId", p.User.ID.String())
	}
	return row, nil
}

// RemoveNudge deletes a previously created notification row.
func (n *Notifier) RemoveNudge(ctx context.Context, tenantID, notificationID uuid.UUID) error {
	return n.inapp.Delete(ctx, tenantID, notificationID)
}
