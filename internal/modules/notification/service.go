// Package notification stores in-app notifications and pushes new ones to connected users.
package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/repository"
)

const defaultListLimit = 20

// PushEvent is what a connected client receives for every new notification.
type PushEvent struct {
	Type         string               `json:"type"`
	Notification *domain.Notification `json:"notification"`
}

type Service struct {
	repo *repository.NotificationRepository
	hub  *Hub
	log  *zap.Logger
}

func NewService(repo *repository.NotificationRepository, hub *Hub, log *zap.Logger) *Service {
	return &Service{repo: repo, hub: hub, log: logger.OrNop(log).Named("notification")}
}

// Notify stores the notification, replacing an unread one with the same type and title, and pushes it
// to the user when online. Losing a dedup race to a concurrent insert counts as delivered.
func (s *Service) Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) error {
	if userID == 0 {
		return nil
	}
	n := &domain.Notification{UserID: userID, Type: typ, Title: title, Content: content}
	if err := s.repo.InsertDeduplicated(ctx, n); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	if s.hub != nil {
		s.hub.SendToUser(userID, PushEvent{Type: "notification", Notification: n})
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]domain.Notification, int64, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	list, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if repository.IsNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Cleanup deletes read notifications created before cutoff.
func (s *Service) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("read notifications purged", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
