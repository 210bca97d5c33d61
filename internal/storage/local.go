package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// LocalStore keeps sealed blobs on the local filesystem as root/<namespace>/<name>.
// Writes go through a temp file that is hard-linked into place, so readers see either
// the whole blob or nothing and an existing blob is never replaced.
type LocalStore struct {
	root   string
	sealer *Sealer
	group  singleflight.Group
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string, sealer *Sealer) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root, sealer: sealer}, nil
}

var _ ObjectStore = (*LocalStore)(nil)

func (l *LocalStore) Kind() string { return KindLocal }

func (l *LocalStore) EnsureNamespace(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrInvalidRef
	}
	ns := NamespaceFor(ownerID)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	// Joined callers share this result; it must not depend on any one caller's ctx.
	_, err, _ := l.group.Do(ns, func() (interface{}, error) {
		if err := os.MkdirAll(filepath.Join(l.root, ns), 0o700); err != nil {
			return nil, fmt.Errorf("create namespace: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return ns, nil
}

func (l *LocalStore) Put(ctx context.Context, namespace, logicalName string, r io.Reader) (string, error) {
	if !validNamespace(namespace) {
		return "", ErrInvalidRef
	}
	data, err := readContent(r)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := joinRef(namespace, sanitizeName(logicalName))
	sealed, err := l.sealer.Seal(namespace, ref, data)
	if err != nil {
		return "", fmt.Errorf("seal blob: %w", err)
	}

	dir := filepath.Join(l.root, namespace)
	tmp, err := os.CreateTemp(dir, ".blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	// Link fails if the target exists, so a colliding name never clobbers a blob.
	err = os.Link(tmpPath, l.path(ref))
	_ = os.Remove(tmpPath)
	if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrBlobExists, ref)
	}
	if err != nil {
		return "", fmt.Errorf("link blob: %w", err)
	}
	return ref, nil
}

func (l *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	ns, _, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(l.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return l.sealer.Open(ns, ref, sealed)
}

func (l *LocalStore) Remove(ctx context.Context, ref string) error {
	if _, _, err := splitRef(ref); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(l.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// path maps an already validated reference to its location on disk.
func (l *LocalStore) path(ref string) string {
	return filepath.Join(l.root, filepath.FromSlash(ref))
}
