// Package audit records access decisions and mutations in the append-only audit trail.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"securevault/internal/metrics"
	"securevault/internal/model"
	"securevault/internal/repository"
)

// Log appends audit entries on behalf of the vault service. Append failures never
// propagate to the caller; they are logged and counted instead.
type Log struct {
	repo       repository.AuditRepository
	log        zerolog.Logger
	metrics    *metrics.Metrics
	queryLimit int
	now        func() time.Time
}

// New creates an audit log. queryLimit caps Query results; values <= 0 fall back to 50.
func New(repo repository.AuditRepository, log zerolog.Logger, m *metrics.Metrics, queryLimit int) *Log {
	if queryLimit <= 0 {
		queryLimit = 50
	}
	return &Log{
		repo:       repo,
		log:        log.With().Str("component", "audit").Logger(),
		metrics:    m,
		queryLimit: queryLimit,
		now:        time.Now,
	}
}

// Record appends an entry for actor. fileID may be empty for events without a file.
func (l *Log) Record(ctx context.Context, actor model.Identity, action model.AuditAction, fileID, detail string) {
	entry := model.AuditEntry{
		ActorID:       actor.ActorID,
		Action:        action,
		Timestamp:     l.now().UTC(),
		OutcomeDetail: detail,
		SourceIP:      actor.SourceIP,
	}
	if fileID != "" {
		entry.FileID = &fileID
	}

	// The workflow may already be finished from the client's point of view.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := l.repo.Append(ctx, entry); err != nil {
		l.metrics.AuditFailed()
		l.log.Error().
			Err(err).
			Str("actor_id", entry.ActorID).
			Str("action", string(entry.Action)).
			Str("file_id", fileID).
			Str("outcome_detail", detail).
			Msg("audit append failed")
	}
}

// Query returns the actor's entries, newest first. limit is clamped to the configured maximum.
func (l *Log) Query(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > l.queryLimit {
		limit = l.queryLimit
	}
	return l.repo.Query(ctx, actorID, limit)
}
