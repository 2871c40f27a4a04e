package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/panel"
	"github.com/dkovalev/famvpn/internal/repository"
)

// Service is the family coordinator: it owns every membership state
// transition, capacity enforcement, device reconciliation and the effective
// subscription resolution. Callers (HTTP layer, bot handlers) invoke its
// methods and translate the typed errors to their transport.
type Service struct {
	store     repository.Store
	panel     panel.Client
	messenger Messenger
	realtime  RealtimeSink
	logger    *logrus.Logger

	// injectable clock for tests
	now func() time.Time
}

// New creates the coordinator. messenger and realtime may be Noop sinks in
// environments without a bot or websocket hub.
func New(store repository.Store, panelClient panel.Client, messenger Messenger, realtime RealtimeSink, logger *logrus.Logger) *Service {
	return &Service{
		store:     store,
		panel:     panelClient,
		messenger: messenger,
		realtime:  realtime,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UserByTelegramID resolves the internal user bound to a Telegram identity.
// Accounts are provisioned by the shop flow, so an unknown id means the user
// never completed a purchase and has nothing to coordinate.
func (s *Service) UserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.store.Users().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	return user, nil
}

// UserByHandle resolves a user by messaging handle, case-insensitive.
func (s *Service) UserByHandle(ctx context.Context, handle string) (*models.User, error) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return nil, apperr.Validation(apperr.CodeInvalidHandle, "Invalid username")
	}
	user, err := s.store.Users().GetByUsername(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	return user, nil
}

// NormalizeHandle canonicalizes a messaging handle: trims whitespace, strips
// a leading '@' and lowercases. Lookups are case-insensitive.
func NormalizeHandle(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "@")
	return strings.ToLower(strings.TrimSpace(value))
}
