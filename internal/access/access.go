// Package access decides whether an actor may act on a file record.
package access

import "securevault/internal/model"

// Intent is the kind of operation being authorized.
type Intent string

const (
	IntentRead   Intent = "read"
	IntentDelete Intent = "delete"
)

// Denial reasons. They are recorded in the audit trail and never returned to callers.
const (
	ReasonNotFound = "not_found"
	ReasonNotOwner = "not_owner"
	ReasonInactive = "inactive"
)

// Decision is the outcome of Authorize. Reason is empty when access is granted.
type Decision struct {
	Granted bool
	Reason  string
}

// Authorize applies the ownership policy: the actor must own the record and the
// record must still be active. The intent does not change the outcome today.
func Authorize(actorID string, rec *model.FileRecord, intent Intent) Decision {
	switch {
	case rec == nil:
		return Decision{Reason: ReasonNotFound}
	case actorID == "" || rec.OwnerID != actorID:
		return Decision{Reason: ReasonNotOwner}
	case !rec.Active:
		return Decision{Reason: ReasonInactive}
	}
	return Decision{Granted: true}
}
