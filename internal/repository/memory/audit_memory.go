package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"securevault/internal/model"
	"securevault/internal/repository"
)

// AuditMemory is an append-only in-process audit store.
type AuditMemory struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewAuditMemory creates an empty in-process audit repository.
func NewAuditMemory() *AuditMemory {
	return &AuditMemory{}
}

var _ repository.AuditRepository = (*AuditMemory)(nil)

func (r *AuditMemory) Append(ctx context.Context, e model.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", repository.ErrInvalidAction, e.Action)
	}
	if e.FileID != nil {
		id := *e.FileID
		e.FileID = &id
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func (r *AuditMemory) Query(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]model.AuditEntry, 0)
	// Walk backwards so equal timestamps come out latest-appended first.
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].ActorID != actorID {
			continue
		}
		e := r.entries[i]
		if e.FileID != nil {
			id := *e.FileID
			e.FileID = &id
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
