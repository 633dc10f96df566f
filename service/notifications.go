package service

import (
	"context"

	"github.com/freewilll/splitledger/database"
	"github.com/sirupsen/logrus"
)

// Notifications returns userID's notifications, newest first
func (s *Service) Notifications(ctx context.Context, userID, limit int) ([]database.Notification, error) {
	notifications, err := s.db.GetNotifications(ctx, userID, limit)
	return notifications, storeError(err)
}

// UnreadCount counts userID's notifications not yet marked read
func (s *Service) UnreadCount(ctx context.Context, userID int) (int, error) {
	n, err := s.db.CountUnreadNotifications(ctx, userID)
	return n, storeError(err)
}

// MarkNotificationRead marks one of userID's notifications read. Other users'
// notifications are not found.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID int) error {
	if err := s.db.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		return notFound(err, "notification", notificationID)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of userID read
func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID int) error {
	if err := s.db.MarkAllNotificationsRead(ctx, userID); err != nil {
		return storeError(err)
	}
	s.log.WithFields(logrus.Fields{"func": "MarkAllNotificationsRead", "user_id": userID}).Debug("Notifications read")
	return nil
}
