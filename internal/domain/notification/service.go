package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sink receives human-readable ledger outcomes. Implementations must not
// assume the caller waits for or inspects the result.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Service stores in-app notifications and fans them out in realtime.
type Service struct {
	repo      Repository
	publisher RealtimePublisher
}

// NewService creates notification service. publisher may be nil.
func NewService(repo Repository, publisher RealtimePublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// Send persists msg and publishes it. Publish failures are logged only.
func (s *Service) Send(ctx context.Context, msg Message) error {
	n := &Notification{
		ID:        uuid.New(),
		UserID:    msg.AccountID,
		Type:      msg.Type,
		Title:     msg.Title,
		IsRead:    false,
		CreatedAt: time.Now(),
	}
	if msg.Body != "" {
		n.Body = sql.NullString{String: msg.Body, Valid: true}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishNew(ctx, n); err != nil {
			log.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("Failed to publish realtime notification")
		}
	}
	return nil
}

// List returns notifications for user
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// UnreadCount returns how many notifications user has not read
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAllRead marks every notification of user as read
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// LogSink writes messages to the log. Used when no database is configured.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, msg Message) error {
	log.Info().
		Str("user_id", msg.AccountID.String()).
		Str("type", string(msg.Type)).
		Str("title", msg.Title).
		Msg(msg.Body)
	return nil
}
