package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mkeloo/loyalty-program/internal/auth"
	"github.com/mkeloo/loyalty-program/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep is the task type for expiring stale sessions.
	TaskSessionSweep = "sessions:sweep"

	// sweepBatchLimit caps rows handled in one sweep run.
	sweepBatchLimit = 500
)

// SessionSweepPayload parameterises a sweep run.
type SessionSweepPayload struct {
	Limit int `json:"limit"`
}

// NewSessionSweepTask constructs an Asynq task.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	if payload.Limit <= 0 {
		payload.Limit = sweepBatchLimit
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// Sweeper removes sessions whose expiry has passed. For every swept session
// it drops the Redis copy, deletes the audit row and publishes an expired
// event so live watchers redirect.
type Sweeper struct {
	repo     auth.Repository
	sessions *shared.SessionManager
	broker   *shared.Broker
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(repo auth.Repository, sessions *shared.SessionManager, broker *shared.Broker, logger *slog.Logger) *Sweeper {
	return &Sweeper{repo: repo, sessions: sessions, broker: broker, logger: logger}
}

// HandleSweep processes TaskSessionSweep tasks.
func (s *Sweeper) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = sweepBatchLimit
	}

	n, err := s.Sweep(ctx, time.Now(), payload.Limit)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("session sweep", slog.Int("expired", n))
	}
	return nil
}

// Sweep runs one expiry pass and returns how many sessions it removed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	records, err := s.repo.ExpiredSessions(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if err := s.sessions.RevokeID(ctx, rec.ID); err != nil {
			s.logger.Warn("revoke expired session", slog.String("session", rec.ID), slog.Any("error", err))
			continue
		}
		ids = append(ids, rec.ID)
		s.publishExpired(ctx, rec)
	}

	if err := s.repo.DeleteSessions(ctx, ids); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}

func (s *Sweeper) publishExpired(ctx context.Context, rec auth.SessionRecord) {
	if s.broker == nil {
		return
	}
	evt := shared.SessionEvent{
		Kind:      shared.SessionExpired,
		SessionID: rec.ID,
		UserID:    strconv.FormatInt(rec.UserID, 10),
	}
	if err := s.broker.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish session expired", slog.Any("error", err))
	}
}
