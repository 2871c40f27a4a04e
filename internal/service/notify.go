package service

import (
	"context"

	"github.com/dkovalev/famvpn/internal/metrics"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
	"github.com/sirupsen/logrus"
)

// MessageAction is a button attached to an outbound chat message. Data is
// the opaque callback payload the front-end echoes back.
type MessageAction struct {
	Label string
	Data  string
}

// Messenger delivers chat messages to a delegate identity (Telegram id).
// Delivery is best-effort; errors are logged and never abort a transition.
type Messenger interface {
	SendMessage(ctx context.Context, telegramID int64, text string, actions []MessageAction) error
}

// RealtimeSink pushes an event to a user's live channel (websocket hub).
type RealtimeSink interface {
	Push(ctx context.Context, userID int64, event map[string]any) error
}

// NoopMessenger discards messages. Used when no bot is configured.
type NoopMessenger struct{}

func (NoopMessenger) SendMessage(context.Context, int64, string, []MessageAction) error { return nil }

// NoopRealtime discards realtime events.
type NoopRealtime struct{}

func (NoopRealtime) Push(context.Context, int64, map[string]any) error { return nil }

// notify persists a notification row and pushes it to the realtime channel.
// The row and the push share one transaction: if the push fails the row is
// rolled back, so users never see an in-app notification that was not also
// offered on the live channel. The primary state transition has already
// committed by the time notify runs, so failures here are logged and
// swallowed.
func (s *Service) notify(ctx context.Context, userID int64, notificationType, title, body, wsType string, payload map[string]any) {
	err := s.store.RunTx(ctx, func(tx repository.Repos) error {
		if _, err := tx.Notifications().Create(ctx, &models.Notification{
			UserID:  userID,
			Type:    notificationType,
			Title:   title,
			Body:    body,
			Payload: payload,
		}); err != nil {
			return err
		}

		event := map[string]any{"type": wsType, "title": title, "message": body}
		for k, v := range payload {
			event[k] = v
		}
		return s.realtime.Push(ctx, userID, event)
	})
	if err != nil {
		metrics.NotifyFailures.WithLabelValues("realtime").Inc()
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"type":    notificationType,
			"error":   err,
		}).Warn("Failed to deliver notification")
	}
}

// sendMessage delivers a chat message best-effort.
func (s *Service) sendMessage(ctx context.Context, telegramID int64, text string, actions []MessageAction) {
	if telegramID == 0 {
		return
	}
	if err := s.messenger.SendMessage(ctx, telegramID, text, actions); err != nil {
		metrics.NotifyFailures.WithLabelValues("messenger").Inc()
		s.logger.WithFields(logrus.Fields{
			"telegram_id": telegramID,
			"error":       err,
		}).Warn("Failed to send chat message")
	}
}
