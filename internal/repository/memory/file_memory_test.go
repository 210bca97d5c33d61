package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"securevault/internal/model"
	"securevault/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id, owner string, created time.Time) *model.FileRecord {
	return &model.FileRecord{
		FileID:      id,
		OwnerID:     owner,
		DisplayName: id + ".txt",
		SizeBytes:   1,
		ContentKind: "txt",
		StorageRef:  "ns/" + id,
		CreatedAt:   created,
		Active:      true,
	}
}

func TestFileMemory_CreateAndFind(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()
	rec := newRecord("f-1", "alice", time.Now())

	id, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "f-1", id)

	got, err := repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)

	// Mutating the returned copy must not leak into the store.
	got.OwnerID = "mallory"
	again, err := repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.OwnerID)
}

func TestFileMemory_CreateDuplicate(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()

	_, err := repo.Create(ctx, newRecord("f-1", "alice", time.Now()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newRecord("f-1", "bob", time.Now()))
	assert.ErrorIs(t, err, repository.ErrDuplicateID)

	got, err := repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
}

func TestFileMemory_FindMissing(t *testing.T) {
	_, err := NewFileMemory().FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFileMemory_ListByOwnerOrdering(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// f-2 and f-3 share a timestamp; f-3 was inserted later so it comes first.
	for _, rec := range []*model.FileRecord{
		newRecord("f-1", "alice", base),
		newRecord("f-2", "alice", base.Add(time.Minute)),
		newRecord("f-3", "alice", base.Add(time.Minute)),
		newRecord("f-4", "bob", base.Add(time.Hour)),
		newRecord("f-5", "alice", base.Add(-time.Minute)),
	} {
		_, err := repo.Create(ctx, rec)
		require.NoError(t, err)
	}

	items, err := repo.ListByOwner(ctx, "alice", 50)
	require.NoError(t, err)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.FileID
	}
	assert.Equal(t, []string{"f-3", "f-2", "f-1", "f-5"}, ids)

	limited, err := repo.ListByOwner(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, "f-3", limited[0].FileID)
}

func TestFileMemory_MarkInactiveHidesFromListing(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()

	_, err := repo.Create(ctx, newRecord("f-1", "alice", time.Now()))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newRecord("f-2", "alice", time.Now()))
	require.NoError(t, err)

	require.NoError(t, repo.MarkInactive(ctx, "f-1"))

	items, err := repo.ListByOwner(ctx, "alice", 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "f-2", items[0].FileID)

	rec, err := repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.False(t, rec.Active)
	require.NotNil(t, rec.DeletedAt)

	first := *rec.DeletedAt
	require.NoError(t, repo.MarkInactive(ctx, "f-1"))
	rec, err = repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.True(t, first.Equal(*rec.DeletedAt))

	assert.ErrorIs(t, repo.MarkInactive(ctx, "missing"), repository.ErrNotFound)
}

func TestFileMemory_IncrementAccessCountConcurrent(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()

	_, err := repo.Create(ctx, newRecord("f-1", "alice", time.Now()))
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementAccessCount(ctx, "f-1"))
		}()
	}
	wg.Wait()

	rec, err := repo.FindByID(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), rec.AccessCount)

	assert.ErrorIs(t, repo.IncrementAccessCount(ctx, "missing"), repository.ErrNotFound)
}

func TestFileMemory_ConcurrentCreates(t *testing.T) {
	repo := NewFileMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, newRecord(fmt.Sprintf("f-%d", i), "alice", time.Now()))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items, err := repo.ListByOwner(ctx, "alice", 100)
	require.NoError(t, err)
	assert.Len(t, items, 20)
}

func TestFileMemory_CancelledContext(t *testing.T) {
	repo := NewFileMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Create(ctx, newRecord("f-1", "alice", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = repo.FindByID(context.Background(), "f-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFileMemory_Backend(t *testing.T) {
	assert.Equal(t, repository.BackendMemory, NewFileMemory().Backend())
}
