package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"securevault/internal/config"
	"securevault/internal/database"
	"securevault/internal/database/migration"
	"securevault/internal/repository"
	"securevault/internal/repository/memory"
	"securevault/internal/repository/postgres"
	"securevault/internal/storage"
)

// metadataBackend is the metadata store chosen at startup. db is nil on the in-process fallback.
type metadataBackend struct {
	db    *sql.DB
	files repository.FileRepository
	audit repository.AuditRepository
}

func (b metadataBackend) name() string {
	return b.files.Backend()
}

func (b metadataBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// openMetadata connects to PostgreSQL and applies the schema. When no database is
// configured or it cannot be reached, the in-process backend is used instead;
// nothing stored there survives a restart.
func openMetadata(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) metadataBackend {
	if !cfg.Enabled() {
		log.Warn().Str("metadata_backend", repository.BackendMemory).Msg("no database configured, using in-process metadata store")
		return memoryBackend()
	}

	db, err := database.NewPostgres(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("metadata_backend", repository.BackendMemory).Msg("database unavailable, falling back to in-process metadata store")
		return memoryBackend()
	}
	if err := migration.EnsureMigrated(ctx, db, log, cfg.Host); err != nil {
		_ = db.Close()
		log.Warn().Err(err).Str("metadata_backend", repository.BackendMemory).Msg("schema migration failed, falling back to in-process metadata store")
		return memoryBackend()
	}

	return metadataBackend{
		db:    db,
		files: postgres.NewFilePostgres(db),
		audit: postgres.NewAuditPostgres(db),
	}
}

func memoryBackend() metadataBackend {
	return metadataBackend{
		files: memory.NewFileMemory(),
		audit: memory.NewAuditMemory(),
	}
}

// openObjectStore builds the configured object store. The sealer key is generated
// per process, so blobs are unreadable after a restart.
func openObjectStore(ctx context.Context, cfg *config.AppConfig) (storage.ObjectStore, error) {
	sealer, err := storage.NewEphemeralSealer()
	if err != nil {
		return nil, err
	}

	switch cfg.Storage.Backend {
	case "", storage.KindLocal:
		return storage.NewLocalStore(cfg.Storage.RootPath, sealer)
	case storage.KindMinIO:
		return storage.NewMinIO(ctx, cfg.MinIO, sealer)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
