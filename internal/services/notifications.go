package services

import (
	"github.com/google/uuid"

	"github.com/kmpdu/evote/internal/models"
)

// Notifications returns the session's notifications, newest first
func (s *VotingSession) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

// AddNotification prepends a notification and forwards it to the sink
func (s *VotingSession) AddNotification(title, message string, typ models.NotificationType) models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNotificationLocked(title, message, typ)
}

func (s *VotingSession) addNotificationLocked(title, message string, typ models.NotificationType) models.Notification {
	n := models.Notification{
		ID:        notificationIDPrefix + uuid.NewString(),
		Title:     title,
		Message:   message,
		Type:      typ,
		Timestamp: s.clock(),
	}
	s.notifications = append([]models.Notification{n}, s.notifications...)

	if s.notifier != nil {
		s.notifier.Notify(s.userKey(), n)
	}
	return n
}

// MarkNotificationRead marks one notification read. Reports false for unknown ids.
func (s *VotingSession) MarkNotificationRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return true
		}
	}
	return false
}

// UnreadCount returns how many notifications are unread
func (s *VotingSession) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, notif := range s.notifications {
		if !notif.Read {
			n++
		}
	}
	return n
}
