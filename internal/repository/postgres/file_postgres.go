package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"securevault/internal/model"
	"securevault/internal/repository"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const fileColumns = `file_id, owner_id, display_name, size_bytes, content_kind, storage_ref,
		created_at, access_count, active, deleted_at`

// FilePostgres is a PostgreSQL implementation of repository.FileRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type FilePostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewFilePostgres creates a new FilePostgres repository.
func NewFilePostgres(db *sql.DB) *FilePostgres {
	return &FilePostgres{db: db, now: time.Now}
}

var _ repository.FileRepository = (*FilePostgres)(nil)

// Create inserts a new file row and returns its id.
func (r *FilePostgres) Create(ctx context.Context, rec *model.FileRecord) (string, error) {
	const q = `
		INSERT INTO files (file_id, owner_id, display_name, size_bytes, content_kind, storage_ref,
			created_at, access_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING file_id
	`
	var id string
	err := r.db.QueryRowContext(ctx, q,
		rec.FileID,
		rec.OwnerID,
		rec.DisplayName,
		rec.SizeBytes,
		rec.ContentKind,
		rec.StorageRef,
		rec.CreatedAt,
		rec.AccessCount,
		rec.Active,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", repository.ErrDuplicateID, rec.FileID)
		}
		return "", err
	}
	return id, nil
}

// FindByID fetches a single file row by id, active or not.
func (r *FilePostgres) FindByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE file_id = $1`
	rec, err := scanFile(r.db.QueryRowContext(ctx, q, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListByOwner returns the owner's active files, newest first; seq breaks created_at ties.
func (r *FilePostgres) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.FileRecord, error) {
	q := `SELECT ` + fileColumns + `
		FROM files
		WHERE owner_id = $1 AND active = TRUE
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.FileRecord, 0)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkInactive soft-deletes the row. The first deletion time is preserved.
func (r *FilePostgres) MarkInactive(ctx context.Context, fileID string) error {
	const q = `UPDATE files SET active = FALSE, deleted_at = COALESCE(deleted_at, $2) WHERE file_id = $1`
	res, err := r.db.ExecContext(ctx, q, fileID, r.now().UTC())
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// IncrementAccessCount bumps access_count atomically in the database.
func (r *FilePostgres) IncrementAccessCount(ctx context.Context, fileID string) error {
	const q = `UPDATE files SET access_count = access_count + 1 WHERE file_id = $1`
	res, err := r.db.ExecContext(ctx, q, fileID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *FilePostgres) Backend() string {
	return repository.BackendPostgres
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	var (
		rec       model.FileRecord
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.FileID,
		&rec.OwnerID,
		&rec.DisplayName,
		&rec.SizeBytes,
		&rec.ContentKind,
		&rec.StorageRef,
		&rec.CreatedAt,
		&rec.AccessCount,
		&rec.Active,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
