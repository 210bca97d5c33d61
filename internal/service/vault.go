package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"securevault/internal/access"
	"securevault/internal/audit"
	"securevault/internal/metrics"
	"securevault/internal/model"
	"securevault/internal/repository"
	"securevault/internal/storage"
)

const (
	defaultListLimit   = 50
	defaultMaxFileSize = 50 * 1024 * 1024
	cleanupTimeout     = 10 * time.Second
)

// Options tunes upload validation and listing.
type Options struct {
	AllowedExtensions []string
	MaxFileSize       int64
	ListLimit         int
}

// VaultService defines the file vault use cases. Every call receives the already
// verified caller explicitly; the service performs no credential checks.
type VaultService interface {
	// Upload validates the content read from r, stores it encrypted under the actor's
	// namespace and records its metadata. A failed metadata write removes the blob again.
	Upload(ctx context.Context, actor model.Identity, filename string, r io.Reader) (*model.UploadResult, error)

	// Retrieve returns the decrypted content of a file owned by actor.
	// Unknown, deleted and foreign files all yield ErrNotFound.
	Retrieve(ctx context.Context, actor model.Identity, fileID string) (*model.RetrievedFile, error)

	// List returns the actor's active files, newest first.
	List(ctx context.Context, actor model.Identity) ([]model.FileSummary, error)

	// Delete removes the blob and soft-deletes the record.
	Delete(ctx context.Context, actor model.Identity, fileID string) error

	// AuditTrail returns the actor's own audit entries, newest first.
	AuditTrail(ctx context.Context, actor model.Identity, limit int) ([]model.AuditEntry, error)
}

type vaultService struct {
	files   repository.FileRepository
	store   storage.ObjectStore
	audit   *audit.Log
	opts    Options
	allowed map[string]struct{}
	log     zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	newID   func() string
	now     func() time.Time
}

// NewVaultService constructs a VaultService over the injected backends.
func NewVaultService(
	files repository.FileRepository,
	store storage.ObjectStore,
	auditLog *audit.Log,
	opts Options,
	log zerolog.Logger,
	m *metrics.Metrics,
) VaultService {
	if opts.ListLimit <= 0 {
		opts.ListLimit = defaultListLimit
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		if ext = normalizeExt(ext); ext != "" {
			allowed[ext] = struct{}{}
		}
	}

	return &vaultService{
		files:   files,
		store:   store,
		audit:   auditLog,
		opts:    opts,
		allowed: allowed,
		log:     log.With().Str("component", "vault").Logger(),
		metrics: m,
		tracer:  otel.Tracer("securevault/internal/service"),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func (s *vaultService) Upload(ctx context.Context, actor model.Identity, filename string, r io.Reader) (res *model.UploadResult, err error) {
	ctx, span := s.tracer.Start(ctx, "VaultService.Upload")
	defer func() { s.finish(span, "upload", err) }()

	if actor.ActorID == "" {
		return nil, ErrUnauthenticated
	}
	content, name, kind, err := s.validate(filename, r)
	if err != nil {
		return nil, err
	}

	fileID := s.newID()
	span.SetAttributes(attribute.String("vault.file_id", fileID))

	ns, err := s.store.EnsureNamespace(ctx, actor.ActorID)
	if err != nil {
		return nil, storeErr("ensure namespace", err)
	}
	ref, err := s.store.Put(ctx, ns, storage.BlobName(fileID, name), bytes.NewReader(content))
	if err != nil {
		if errors.Is(err, storage.ErrEmptyContent) {
			return nil, invalid("file is empty")
		}
		if errors.Is(err, storage.ErrBlobExists) {
			return nil, fmt.Errorf("put blob: %w: %w", repository.ErrDuplicateID, err)
		}
		return nil, storeErr("put blob", err)
	}

	rec := &model.FileRecord{
		FileID:      fileID,
		OwnerID:     actor.ActorID,
		DisplayName: name,
		SizeBytes:   int64(len(content)),
		ContentKind: kind,
		StorageRef:  ref,
		CreatedAt:   s.now().UTC(),
		Active:      true,
	}
	// The blob is already written; a client hanging up must not abandon the insert
	// halfway and leave its outcome unknown.
	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := s.files.Create(createCtx, rec); err != nil {
		switch s.createOutcome(ctx, rec, err) {
		case createCommitted:
			s.log.Warn().
				Err(err).
				Str("file_id", fileID).
				Msg("create reported failure but the record was committed")
		case createUnknown:
			// A committed record must keep its blob.
			s.log.Error().
				Err(errors.Join(ErrOrphanedBlob, err)).
				Str("file_id", fileID).
				Str("storage_ref", ref).
				Msg("record state unknown, keeping blob")
			return nil, repoErr("create record", err)
		default:
			s.discardBlob(ctx, fileID, ref)
			return nil, repoErr("create record", err)
		}
	}

	s.audit.Record(ctx, actor, model.ActionUpload, fileID, fmt.Sprintf("%s (%d bytes)", name, rec.SizeBytes))
	s.log.Info().
		Str("actor_id", actor.ActorID).
		Str("file_id", fileID).
		Int64("size_bytes", rec.SizeBytes).
		Msg("file uploaded")

	return &model.UploadResult{FileID: fileID, DisplayName: name}, nil
}

func (s *vaultService) Retrieve(ctx context.Context, actor model.Identity, fileID string) (out *model.RetrievedFile, err error) {
	ctx, span := s.tracer.Start(ctx, "VaultService.Retrieve", trace.WithAttributes(attribute.String("vault.file_id", fileID)))
	defer func() { s.finish(span, "retrieve", err) }()

	rec, err := s.authorize(ctx, actor, fileID, access.IntentRead)
	if err != nil {
		return nil, err
	}

	content, err := s.store.Get(ctx, rec.StorageRef)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBlobNotFound):
			return nil, s.missingBlob(ctx, actor, rec)
		case errors.Is(err, storage.ErrCorruptBlob):
			s.log.Error().
				Err(err).
				Str("file_id", rec.FileID).
				Str("storage_ref", rec.StorageRef).
				Msg("stored blob failed to decrypt")
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
		default:
			return nil, storeErr("get blob", err)
		}
	}

	if err := s.files.IncrementAccessCount(ctx, fileID); err != nil {
		return nil, repoErr("increment access count", err)
	}
	s.audit.Record(ctx, actor, model.ActionDownload, fileID, rec.DisplayName)

	return &model.RetrievedFile{
		Content:     content,
		DisplayName: rec.DisplayName,
		ContentKind: rec.ContentKind,
	}, nil
}

func (s *vaultService) List(ctx context.Context, actor model.Identity) (out []model.FileSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "VaultService.List")
	defer func() { s.finish(span, "list", err) }()

	if actor.ActorID == "" {
		return nil, ErrUnauthenticated
	}
	recs, err := s.files.ListByOwner(ctx, actor.ActorID, s.opts.ListLimit)
	if err != nil {
		return nil, repoErr("list records", err)
	}

	out = make([]model.FileSummary, len(recs))
	for i, rec := range recs {
		out[i] = rec.Summary()
	}
	return out, nil
}

func (s *vaultService) Delete(ctx context.Context, actor model.Identity, fileID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "VaultService.Delete", trace.WithAttributes(attribute.String("vault.file_id", fileID)))
	defer func() { s.finish(span, "delete", err) }()

	rec, err := s.authorize(ctx, actor, fileID, access.IntentDelete)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, rec.StorageRef); err != nil {
		return storeErr("remove blob", err)
	}

	// The blob is gone; flip the record even if the caller has gone away.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.files.MarkInactive(markCtx, fileID); err != nil {
		s.log.Error().
			Err(err).
			Str("file_id", fileID).
			Msg("blob removed but record is still active")
		return repoErr("mark inactive", err)
	}

	s.audit.Record(ctx, actor, model.ActionDelete, fileID, rec.DisplayName)
	s.log.Info().
		Str("actor_id", actor.ActorID).
		Str("file_id", fileID).
		Msg("file deleted")
	return nil
}

func (s *vaultService) AuditTrail(ctx context.Context, actor model.Identity, limit int) (out []model.AuditEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "VaultService.AuditTrail")
	defer func() { s.finish(span, "audit_query", err) }()

	if actor.ActorID == "" {
		return nil, ErrUnauthenticated
	}
	out, err = s.audit.Query(ctx, actor.ActorID, limit)
	if err != nil {
		return nil, repoErr("query audit", err)
	}
	return out, nil
}

// validate checks the upload before any state changes and returns the content,
// cleaned display name and content kind.
func (s *vaultService) validate(filename string, r io.Reader) ([]byte, string, string, error) {
	name := cleanDisplayName(filename)
	if name == "" {
		return nil, "", "", invalid("filename is required")
	}
	kind := contentKind(name)
	if kind == "" {
		return nil, "", "", invalid("file has no extension")
	}
	if _, ok := s.allowed[kind]; !ok {
		return nil, "", "", invalid("file type %q is not allowed", kind)
	}
	if r == nil {
		return nil, "", "", invalid("file is empty")
	}

	content, err := io.ReadAll(io.LimitReader(r, s.opts.MaxFileSize+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("read upload: %w", err)
	}
	if len(content) == 0 {
		return nil, "", "", invalid("file is empty")
	}
	if int64(len(content)) > s.opts.MaxFileSize {
		return nil, "", "", invalid("file exceeds the maximum size of %d bytes", s.opts.MaxFileSize)
	}
	return content, name, kind, nil
}

// authorize loads the record and applies the ownership policy. Every denial is
// audited under the requesting actor and surfaces as ErrNotFound.
func (s *vaultService) authorize(ctx context.Context, actor model.Identity, fileID string, intent access.Intent) (*model.FileRecord, error) {
	var rec *model.FileRecord
	if fileID != "" {
		found, err := s.files.FindByID(ctx, fileID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, repoErr("find record", err)
		default:
			rec = found
		}
	}

	d := access.Authorize(actor.ActorID, rec, intent)
	if !d.Granted {
		s.deny(ctx, actor, fileID, intent, d.Reason)
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *vaultService) deny(ctx context.Context, actor model.Identity, fileID string, intent access.Intent, reason string) {
	s.log.Info().
		Str("actor_id", actor.ActorID).
		Str("file_id", fileID).
		Str("intent", string(intent)).
		Str("reason", reason).
		Msg("access denied")
	s.audit.Record(ctx, actor, model.ActionAccessDenied, fileID, reason)
}

// missingBlob handles an authorized record whose blob is absent. A retrieve that
// raced a delete sees the record inactive by now and gets the uniform denial;
// otherwise the record is dangling.
func (s *vaultService) missingBlob(ctx context.Context, actor model.Identity, rec *model.FileRecord) error {
	current, err := s.files.FindByID(ctx, rec.FileID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.deny(ctx, actor, rec.FileID, access.IntentRead, access.ReasonNotFound)
		return ErrNotFound
	case err != nil:
		return repoErr("find record", err)
	case !current.Active:
		s.deny(ctx, actor, rec.FileID, access.IntentRead, access.ReasonInactive)
		return ErrNotFound
	}

	s.log.Error().
		Err(ErrDanglingRecord).
		Str("file_id", rec.FileID).
		Str("storage_ref", rec.StorageRef).
		Msg("active record has no blob")
	return fmt.Errorf("%w: %s", ErrDanglingRecord, rec.FileID)
}

type createResult int

const (
	createAbsent createResult = iota
	createCommitted
	createUnknown
)

// createOutcome decides what a failed Create left behind. A duplicate id belongs to
// another record; otherwise the store is asked again on a detached context, and only
// a record pointing at this upload's blob counts as committed.
func (s *vaultService) createOutcome(ctx context.Context, rec *model.FileRecord, createErr error) createResult {
	if errors.Is(createErr, repository.ErrDuplicateID) {
		return createAbsent
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	current, err := s.files.FindByID(ctx, rec.FileID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return createAbsent
	case err != nil:
		return createUnknown
	case current.OwnerID == rec.OwnerID && current.StorageRef == rec.StorageRef:
		return createCommitted
	default:
		return createAbsent
	}
}

// discardBlob removes a blob whose metadata write failed. Failure leaves an orphan,
// which is logged and otherwise ignored.
func (s *vaultService) discardBlob(ctx context.Context, fileID, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.store.Remove(ctx, ref); err != nil {
		s.log.Error().
			Err(errors.Join(ErrOrphanedBlob, err)).
			Str("file_id", fileID).
			Str("storage_ref", ref).
			Msg("compensating blob removal failed")
	}
}

func (s *vaultService) finish(span trace.Span, op string, err error) {
	outcome := outcomeOf(err)
	s.metrics.ObserveOperation(op, outcome)

	span.SetAttributes(attribute.String("vault.outcome", outcome))
	if outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case IsValidation(err):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthenticated):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeError
	}
}

func repoErr(op string, err error) error {
	if errors.Is(err, repository.ErrDuplicateID) || isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

func storeErr(op string, err error) error {
	if errors.Is(err, storage.ErrInvalidRef) || isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// contentKind is the lowercased extension after the last dot.
func contentKind(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// cleanDisplayName drops any client-side directory components.
func cleanDisplayName(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
