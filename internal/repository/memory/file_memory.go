// Package memory provides in-process repositories used when the durable database is
// unreachable at startup. Contents are lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"securevault/internal/model"
	"securevault/internal/repository"
)

type fileRow struct {
	rec model.FileRecord
	seq uint64
}

// FileMemory implements repository.FileRepository over a mutex-guarded map.
// Returned records are copies; callers can never mutate stored state.
type FileMemory struct {
	mu   sync.RWMutex
	rows map[string]*fileRow
	seq  uint64
	now  func() time.Time
}

// NewFileMemory creates an empty in-process file repository.
func NewFileMemory() *FileMemory {
	return &FileMemory{rows: make(map[string]*fileRow), now: time.Now}
}

var _ repository.FileRepository = (*FileMemory)(nil)

func (r *FileMemory) Create(ctx context.Context, rec *model.FileRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[rec.FileID]; ok {
		return "", repository.ErrDuplicateID
	}
	r.seq++
	r.rows[rec.FileID] = &fileRow{rec: cloneRecord(*rec), seq: r.seq}
	return rec.FileID, nil
}

func (r *FileMemory) FindByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := cloneRecord(row.rec)
	return &rec, nil
}

func (r *FileMemory) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]*fileRow, 0)
	for _, row := range r.rows {
		if row.rec.OwnerID == ownerID && row.rec.Active {
			matched = append(matched, row)
		}
	}
	items := make([]fileRow, len(matched))
	for i, row := range matched {
		items[i] = fileRow{rec: cloneRecord(row.rec), seq: row.seq}
	}
	r.mu.RUnlock()

	// Same ordering as the SQL backend: created_at DESC, seq DESC.
	sort.Slice(items, func(i, j int) bool {
		if !items[i].rec.CreatedAt.Equal(items[j].rec.CreatedAt) {
			return items[i].rec.CreatedAt.After(items[j].rec.CreatedAt)
		}
		return items[i].seq > items[j].seq
	})

	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]model.FileRecord, len(items))
	for i := range items {
		out[i] = items[i].rec
	}
	return out, nil
}

func (r *FileMemory) MarkInactive(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	row.rec.Active = false
	if row.rec.DeletedAt == nil {
		t := r.now().UTC()
		row.rec.DeletedAt = &t
	}
	return nil
}

func (r *FileMemory) IncrementAccessCount(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	row.rec.AccessCount++
	return nil
}

func (r *FileMemory) Backend() string {
	return repository.BackendMemory
}

func cloneRecord(rec model.FileRecord) model.FileRecord {
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		rec.DeletedAt = &t
	}
	return rec
}
