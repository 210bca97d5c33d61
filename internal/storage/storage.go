// Package storage holds the encrypted object store used for file contents.
// Blobs are grouped into one namespace per owner and are always sealed before
// they reach the backing medium.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyContent is returned by Put when the reader yields no bytes.
	ErrEmptyContent = errors.New("empty content")
	// ErrBlobNotFound is returned by Get when nothing is stored under the reference.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrCorruptBlob is returned by Get when the stored bytes cannot be decrypted.
	ErrCorruptBlob = errors.New("corrupt blob")
	// ErrBlobExists is returned by Put when the reference is already taken.
	ErrBlobExists = errors.New("blob already exists")
	// ErrInvalidRef is returned for references or namespaces that do not resolve
	// inside the store root.
	ErrInvalidRef = errors.New("invalid storage reference")
)

const (
	KindLocal = "local"
	KindMinIO = "minio"
)

// ObjectStore maps opaque references to encrypted blobs.
// Implementations are safe for concurrent use by multiple goroutines.
type ObjectStore interface {
	// EnsureNamespace creates the owner's namespace if needed and returns its name.
	// Concurrent calls for the same owner create at most one namespace.
	EnsureNamespace(ctx context.Context, ownerID string) (string, error)
	// Put encrypts everything read from r and stores it under namespace.
	// It never replaces an existing blob.
	Put(ctx context.Context, namespace, logicalName string, r io.Reader) (string, error)
	// Get returns the decrypted content stored under ref.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Remove deletes the blob under ref. Removing an absent blob is not an error.
	Remove(ctx context.Context, ref string) error
	// Kind names the backing medium.
	Kind() string
}

const (
	namespacePrefix = "user_"
	maxNameBytes    = 200
)

// NamespaceFor derives the namespace name for an owner. The result only contains
// [a-z0-9_] so arbitrary owner ids can never escape the store root.
func NamespaceFor(ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return namespacePrefix + hex.EncodeToString(sum[:8])
}

// BlobName joins a file id and display name into the logical blob name.
func BlobName(fileID, displayName string) string {
	return fileID + "_" + displayName
}

// sanitizeName turns a logical name into a single safe path segment.
func sanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "blob"
	}
	return cleaned
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

func validNamespace(ns string) bool {
	return strings.HasPrefix(ns, namespacePrefix) && validSegment(ns)
}

// joinRef builds a reference from a namespace and a sanitized blob name.
func joinRef(namespace, name string) string {
	return namespace + "/" + name
}

// splitRef validates a reference and returns its namespace and blob name.
func splitRef(ref string) (string, string, error) {
	ns, name, ok := strings.Cut(ref, "/")
	if !ok || !validNamespace(ns) || !validSegment(name) {
		return "", "", ErrInvalidRef
	}
	return ns, name, nil
}

// readContent drains r and rejects empty input.
func readContent(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyContent
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}
	return data, nil
}
