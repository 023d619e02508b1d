package repository

import (
	"github.com/vendalink/channel-service/internal/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Create(n *domain.Notification) error
	ListByAgent(agentID int64, unreadOnly bool) ([]domain.Notification, error)
}

type repo struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(n *domain.Notification) error {
	return r.db.Create(n).Error
}

func (r *repo) ListByAgent(agentID int64, unreadOnly bool) ([]domain.Notification, error) {
	var notifications []domain.Notification
	q := r.db.Where("agent_id = ?", agentID).Order("created_at desc")
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	err := q.Find(&notifications).Error
	return notifications, err
}
