package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"securevault/internal/model"
	"securevault/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileColumnNames = []string{"file_id", "owner_id", "display_name", "size_bytes", "content_kind", "storage_ref",
	"created_at", "access_count", "active", "deleted_at"}

func newFileRepo(t *testing.T) (*FilePostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFilePostgres(db), mock
}

func TestFilePostgres_Create(t *testing.T) {
	repo, mock := newFileRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &model.FileRecord{
		FileID:      "f-1",
		OwnerID:     "alice",
		DisplayName: "report.pdf",
		SizeBytes:   3,
		ContentKind: "pdf",
		StorageRef:  "user_abc/f-1_report.pdf",
		CreatedAt:   now,
		Active:      true,
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").
			WithArgs(rec.FileID, rec.OwnerID, rec.DisplayName, rec.SizeBytes, rec.ContentKind, rec.StorageRef,
				rec.CreatedAt, rec.AccessCount, rec.Active).
			WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow(rec.FileID))

		id, err := repo.Create(ctx, rec)

		assert.NoError(t, err)
		assert.Equal(t, "f-1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate id", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

		id, err := repo.Create(ctx, rec)

		assert.ErrorIs(t, err, repository.ErrDuplicateID)
		assert.Empty(t, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other error", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").WillReturnError(errors.New("conn reset"))

		_, err := repo.Create(ctx, rec)

		assert.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrDuplicateID)
	})
}

func TestFilePostgres_FindByID(t *testing.T) {
	repo, mock := newFileRepo(t)
	ctx := context.Background()

	t.Run("found active", func(t *testing.T) {
		rows := sqlmock.NewRows(fileColumnNames).
			AddRow("f-1", "alice", "a.txt", 10, "txt", "ns/f-1_a.txt", time.Now(), 2, true, nil)
		mock.ExpectQuery("SELECT (.+) FROM files WHERE file_id = ?").
			WithArgs("f-1").
			WillReturnRows(rows)

		rec, err := repo.FindByID(ctx, "f-1")

		require.NoError(t, err)
		assert.Equal(t, "alice", rec.OwnerID)
		assert.Equal(t, int64(2), rec.AccessCount)
		assert.True(t, rec.Active)
		assert.Nil(t, rec.DeletedAt)
	})

	t.Run("found inactive", func(t *testing.T) {
		deleted := time.Now().UTC()
		rows := sqlmock.NewRows(fileColumnNames).
			AddRow("f-2", "alice", "a.txt", 10, "txt", "ns/f-2_a.txt", time.Now(), 0, false, deleted)
		mock.ExpectQuery("SELECT (.+) FROM files WHERE file_id = ?").
			WithArgs("f-2").
			WillReturnRows(rows)

		rec, err := repo.FindByID(ctx, "f-2")

		require.NoError(t, err)
		assert.False(t, rec.Active)
		require.NotNil(t, rec.DeletedAt)
		assert.True(t, deleted.Equal(*rec.DeletedAt))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM files WHERE file_id = ?").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(fileColumnNames))

		rec, err := repo.FindByID(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, rec)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_ListByOwner(t *testing.T) {
	repo, mock := newFileRepo(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows(fileColumnNames).
			AddRow("f-2", "alice", "b.txt", 5, "txt", "ns/f-2_b.txt", now, 0, true, nil).
			AddRow("f-1", "alice", "a.txt", 5, "txt", "ns/f-1_a.txt", now.Add(-time.Minute), 1, true, nil)
		mock.ExpectQuery("SELECT (.+) FROM files WHERE owner_id = (.+) AND active = TRUE ORDER BY created_at DESC, seq DESC").
			WithArgs("alice", 50).
			WillReturnRows(rows)

		items, err := repo.ListByOwner(ctx, "alice", 50)

		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "f-2", items[0].FileID)
		assert.Equal(t, "f-1", items[1].FileID)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM files WHERE owner_id").
			WillReturnError(errors.New("db down"))

		items, err := repo.ListByOwner(ctx, "alice", 50)

		assert.Error(t, err)
		assert.Nil(t, items)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_MarkInactive(t *testing.T) {
	repo, mock := newFileRepo(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("UPDATE files SET active = FALSE").
			WithArgs("f-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkInactive(ctx, "f-1"))
	})

	t.Run("unknown id", func(t *testing.T) {
		mock.ExpectExec("UPDATE files SET active = FALSE").
			WithArgs("missing", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.MarkInactive(ctx, "missing"), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_IncrementAccessCount(t *testing.T) {
	repo, mock := newFileRepo(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("UPDATE files SET access_count = access_count \\+ 1 WHERE file_id = ?").
			WithArgs("f-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.IncrementAccessCount(ctx, "f-1"))
	})

	t.Run("unknown id", func(t *testing.T) {
		mock.ExpectExec("UPDATE files SET access_count").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.IncrementAccessCount(ctx, "missing"), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_Backend(t *testing.T) {
	repo, _ := newFileRepo(t)
	assert.Equal(t, repository.BackendPostgres, repo.Backend())
}
