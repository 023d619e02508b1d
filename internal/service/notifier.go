package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/events"
	notificationRepo "github.com/vendalink/channel-service/internal/repository/notification"
)

// Notifier creates agent-facing notification records and mirrors them to the
// broker. Fire and forget: failures are logged and never reach the caller,
// so a broken broker cannot fail message routing.
type Notifier struct {
	notifications notificationRepo.Repository
	publisher     events.Publisher
	logger        *slog.Logger
}

func NewNotifier(notifications notificationRepo.Repository, publisher events.Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, kind domain.NotificationKind, agentID int64, lead *domain.Lead, instanceID int64, body string) {
	notification := domain.Notification{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		LeadID:     lead.ID,
		InstanceID: instanceID,
		Kind:       kind,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}

	if err := n.notifications.Create(&notification); err != nil {
		n.logger.Error("failed to persist notification",
			slog.String("kind", string(kind)),
			slog.Int64("agentId", agentID),
			"error", err.Error())
		return
	}

	if n.publisher == nil {
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := n.publisher.PublishNotification(publishCtx, notification); err != nil {
		n.logger.Error("failed to publish notification event",
			slog.String("kind", string(kind)),
			"error", err.Error())
	}
}
