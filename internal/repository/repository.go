package repository

import (
	"context"
	"errors"

	"securevault/internal/model"
)

// Package repository contains the metadata and audit persistence contracts.
// Implementations live in subpackages: postgres (durable) and memory (in-process fallback).
// Both must produce identical results for identical call sequences.

var (
	// ErrNotFound is returned when no record exists for the requested file id.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID is returned by Create when the file id is already taken.
	ErrDuplicateID = errors.New("duplicate file id")
	// ErrInvalidAction is returned by Append for an entry whose action is not a known AuditAction.
	ErrInvalidAction = errors.New("invalid audit action")
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// FileRepository defines persistence for file metadata. No business logic here.
type FileRepository interface {
	// Create inserts a new record and returns its file id.
	// Returns ErrDuplicateID if the id is already present.
	Create(ctx context.Context, rec *model.FileRecord) (string, error)

	// FindByID returns the record regardless of its active flag, or ErrNotFound.
	FindByID(ctx context.Context, fileID string) (*model.FileRecord, error)

	// ListByOwner returns at most limit active records for owner, newest first.
	// Records created at the same instant are returned latest-inserted first.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.FileRecord, error)

	// MarkInactive flips the active flag off (soft delete). Returns ErrNotFound for unknown ids.
	MarkInactive(ctx context.Context, fileID string) error

	// IncrementAccessCount adds exactly one to the access counter. Returns ErrNotFound for unknown ids.
	IncrementAccessCount(ctx context.Context, fileID string) error

	// Backend names the implementation, for health reporting.
	Backend() string
}

// AuditRepository is append-only: there is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry model.AuditEntry) error

	// Query returns at most limit entries for actor, newest first.
	Query(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error)
}
