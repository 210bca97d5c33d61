package model

import "time"

// AuditAction enumerates the events recorded in the audit trail.
type AuditAction string

const (
	ActionUpload       AuditAction = "upload"
	ActionDownload     AuditAction = "download"
	ActionDelete       AuditAction = "delete"
	ActionAccessDenied AuditAction = "access_denied"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionUpload, ActionDownload, ActionDelete, ActionAccessDenied:
		return true
	}
	return false
}

// AuditEntry is an append-only record of an access decision or mutation.
// FileID is nil for events that do not concern a single file.
type AuditEntry struct {
	ActorID       string      `json:"actor_id"`
	Action        AuditAction `json:"action"`
	FileID        *string     `json:"file_id"`
	Timestamp     time.Time   `json:"timestamp"`
	OutcomeDetail string      `json:"outcome_detail"`
	SourceIP      string      `json:"source_ip,omitempty"`
}
