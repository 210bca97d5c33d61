package model

import "time"

// FileRecord describes a stored file. FileID and OwnerID never change after creation;
// only AccessCount and Active are mutated over the record's life.
// StorageRef is an opaque handle owned by the object store.
type FileRecord struct {
	FileID      string     `json:"file_id"`
	OwnerID     string     `json:"owner_id"`
	DisplayName string     `json:"display_name"`
	SizeBytes   int64      `json:"size_bytes"`
	ContentKind string     `json:"content_kind"`
	StorageRef  string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	AccessCount int64      `json:"access_count"`
	Active      bool       `json:"active"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Summary projects the record into the listing shape returned to callers.
func (r FileRecord) Summary() FileSummary {
	return FileSummary{
		FileID:      r.FileID,
		DisplayName: r.DisplayName,
		SizeBytes:   r.SizeBytes,
		ContentKind: r.ContentKind,
		CreatedAt:   r.CreatedAt,
		AccessCount: r.AccessCount,
	}
}

// FileSummary is a single row of a user's file listing.
type FileSummary struct {
	FileID      string    `json:"file_id"`
	DisplayName string    `json:"display_name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentKind string    `json:"content_kind"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int64     `json:"access_count"`
}

// RetrievedFile is the decrypted content of a file together with its descriptive fields.
type RetrievedFile struct {
	Content     []byte
	DisplayName string
	ContentKind string
}

// UploadResult identifies a newly stored file.
type UploadResult struct {
	FileID      string `json:"file_id"`
	DisplayName string `json:"display_name"`
}
