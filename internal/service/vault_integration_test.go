package service

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securevault/internal/audit"
	"securevault/internal/model"
	"securevault/internal/repository"
	"securevault/internal/repository/memory"
	"securevault/internal/storage"
)

type vault struct {
	svc   VaultService
	files *memory.FileMemory
	root  string
}

func newVault(t *testing.T) *vault {
	t.Helper()
	sealer, err := storage.NewEphemeralSealer()
	require.NoError(t, err)
	root := t.TempDir()
	store, err := storage.NewLocalStore(root, sealer)
	require.NoError(t, err)

	files := memory.NewFileMemory()
	svc := NewVaultService(
		files,
		store,
		audit.New(memory.NewAuditMemory(), zerolog.Nop(), nil, 50),
		Options{AllowedExtensions: []string{"pdf", "txt", "csv"}, MaxFileSize: 1 << 20},
		zerolog.Nop(),
		nil,
	)
	return &vault{svc: svc, files: files, root: root}
}

func (v *vault) upload(t *testing.T, actor model.Identity, name, body string) string {
	t.Helper()
	res, err := v.svc.Upload(context.Background(), actor, name, strings.NewReader(body))
	require.NoError(t, err)
	return res.FileID
}

func trailActions(t *testing.T, svc VaultService, actor model.Identity) []model.AuditAction {
	t.Helper()
	entries, err := svc.AuditTrail(context.Background(), actor, 0)
	require.NoError(t, err)
	out := make([]model.AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestVault_ReportScenario(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	id := v.upload(t, alice, "report.pdf", "%PD")

	got, err := v.svc.Retrieve(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PD"), got.Content)
	assert.Equal(t, "report.pdf", got.DisplayName)
	assert.Equal(t, "pdf", got.ContentKind)

	_, err = v.svc.Retrieve(ctx, bob, id)
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, v.svc.Delete(ctx, alice, id))

	_, err = v.svc.Retrieve(ctx, alice, id)
	assert.Equal(t, ErrNotFound, err)

	assert.Equal(t, []model.AuditAction{
		model.ActionAccessDenied,
		model.ActionDelete,
		model.ActionDownload,
		model.ActionUpload,
	}, trailActions(t, v.svc, alice))
	assert.Equal(t, []model.AuditAction{model.ActionAccessDenied}, trailActions(t, v.svc, bob))
}

func TestVault_DenialsAreUniform(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	id := v.upload(t, alice, "notes.txt", "secret")

	_, foreignErr := v.svc.Retrieve(ctx, bob, id)
	_, unknownErr := v.svc.Retrieve(ctx, bob, "00000000-0000-0000-0000-000000000000")
	_, emptyErr := v.svc.Retrieve(ctx, bob, "")
	_, anonErr := v.svc.Retrieve(ctx, model.Identity{}, id)

	assert.Equal(t, unknownErr, foreignErr)
	assert.Equal(t, unknownErr, emptyErr)
	assert.Equal(t, unknownErr, anonErr)
	assert.Equal(t, foreignErr.Error(), unknownErr.Error())

	foreignDel := v.svc.Delete(ctx, bob, id)
	unknownDel := v.svc.Delete(ctx, bob, "nope")
	assert.Equal(t, unknownDel, foreignDel)

	// The foreign delete did not touch alice's file.
	got, err := v.svc.Retrieve(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got.Content)
}

func TestVault_AccessCount(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	id := v.upload(t, alice, "notes.txt", "hello")

	for i := 0; i < 3; i++ {
		_, err := v.svc.Retrieve(ctx, alice, id)
		require.NoError(t, err)
	}
	_, err := v.svc.Retrieve(ctx, bob, id)
	require.Error(t, err)

	rec, err := v.files.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.AccessCount)

	list, err := v.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].AccessCount)
}

func TestVault_ListIsolation(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	a1 := v.upload(t, alice, "a1.txt", "1")
	a2 := v.upload(t, alice, "a2.csv", "2")
	v.upload(t, bob, "b1.txt", "3")
	a3 := v.upload(t, alice, "a3.pdf", "4")

	require.NoError(t, v.svc.Delete(ctx, alice, a2))

	list, err := v.svc.List(ctx, alice)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.FileID
	}
	assert.Equal(t, []string{a3, a1}, ids)

	bobs, err := v.svc.List(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "b1.txt", bobs[0].DisplayName)
}

func TestVault_BlobsAreEncryptedAtRest(t *testing.T) {
	v := newVault(t)
	id := v.upload(t, alice, "notes.txt", "the launch code is 0000")

	rec, err := v.files.FindByID(context.Background(), id)
	require.NoError(t, err)

	raw, err := os.ReadFile(v.root + "/" + rec.StorageRef)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("launch code")))
	assert.True(t, strings.HasSuffix(rec.StorageRef, id+"_notes.txt"))
}

func TestVault_ConcurrentFirstUploads(t *testing.T) {
	v := newVault(t)
	carol := model.Identity{ActorID: "carol"}

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := v.svc.Upload(context.Background(), carol, "doc.txt", strings.NewReader("same instant"))
			errs[i] = err
			if err == nil {
				ids[i] = res.FileID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, ids[0], ids[1])

	list, err := v.svc.List(context.Background(), carol)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	entries, err := os.ReadDir(v.root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, storage.NamespaceFor("carol"), entries[0].Name())
}

func TestVault_DanglingRecordAfterExternalBlobLoss(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	id := v.upload(t, alice, "notes.txt", "hello")

	rec, err := v.files.FindByID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(v.root+"/"+rec.StorageRef))

	_, err = v.svc.Retrieve(ctx, alice, id)
	assert.ErrorIs(t, err, ErrDanglingRecord)
}

func TestVault_RejectedUploadLeavesNoState(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.svc.Upload(ctx, alice, "malware.exe", strings.NewReader("MZ"))
	assert.True(t, IsValidation(err))

	list, err := v.svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)

	entries, err := os.ReadDir(v.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, trailActions(t, v.svc, alice))
}

// lateFailRepo commits the record and then reports the caller's cancellation, as
// database/sql can when a client disconnects mid-insert.
type lateFailRepo struct {
	*memory.FileMemory
}

func (r lateFailRepo) Create(ctx context.Context, rec *model.FileRecord) (string, error) {
	if _, err := r.FileMemory.Create(ctx, rec); err != nil {
		return "", err
	}
	return "", context.Canceled
}

func TestVault_CommittedRecordKeepsBlobWhenCreateReportsCancel(t *testing.T) {
	sealer, err := storage.NewEphemeralSealer()
	require.NoError(t, err)
	store, err := storage.NewLocalStore(t.TempDir(), sealer)
	require.NoError(t, err)
	files := memory.NewFileMemory()
	svc := NewVaultService(
		lateFailRepo{files},
		store,
		audit.New(memory.NewAuditMemory(), zerolog.Nop(), nil, 50),
		Options{AllowedExtensions: []string{"pdf"}},
		zerolog.Nop(),
		nil,
	)
	ctx := context.Background()

	res, err := svc.Upload(ctx, alice, "report.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := svc.Retrieve(ctx, alice, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), got.Content)
}

func TestVault_CollidingIDLeavesFirstUploadIntact(t *testing.T) {
	v := newVault(t)
	v.svc.(*vaultService).newID = func() string { return "fixed-id" }
	ctx := context.Background()

	id := v.upload(t, alice, "report.pdf", "first")

	_, err := v.svc.Upload(ctx, alice, "report.pdf", strings.NewReader("second"))
	assert.ErrorIs(t, err, repository.ErrDuplicateID)

	_, err = v.svc.Upload(ctx, alice, "other.pdf", strings.NewReader("third"))
	assert.ErrorIs(t, err, repository.ErrDuplicateID)

	got, err := v.svc.Retrieve(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got.Content)

	list, err := v.svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVault_MalformedIDIsAuditedAsDenial(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.svc.Retrieve(ctx, bob, "not-a-uuid")
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, ErrNotFound, v.svc.Delete(ctx, bob, "../../etc"))

	entries, err := v.svc.AuditTrail(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.ActionAccessDenied, e.Action)
		assert.Equal(t, "not_found", e.OutcomeDetail)
	}
}
