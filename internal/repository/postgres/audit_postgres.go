package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"securevault/internal/model"
	"securevault/internal/repository"
)

// AuditPostgres stores audit entries in the append-only audit_logs table.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres repository.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

// Append inserts one audit row.
func (r *AuditPostgres) Append(ctx context.Context, e model.AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", repository.ErrInvalidAction, e.Action)
	}
	const q = `
		INSERT INTO audit_logs (actor_id, action, file_id, ts, outcome_detail, source_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q,
		e.ActorID,
		string(e.Action),
		e.FileID,
		e.Timestamp,
		e.OutcomeDetail,
		e.SourceIP,
	)
	return err
}

// Query returns the actor's entries newest first.
func (r *AuditPostgres) Query(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error) {
	const q = `
		SELECT actor_id, action, file_id, ts, outcome_detail, source_ip
		FROM audit_logs
		WHERE actor_id = $1
		ORDER BY ts DESC, seq DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, q, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e      model.AuditEntry
			action string
			fileID sql.NullString
		)
		if err := rows.Scan(&e.ActorID, &action, &fileID, &e.Timestamp, &e.OutcomeDetail, &e.SourceIP); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		if fileID.Valid {
			id := fileID.String
			e.FileID = &id
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
