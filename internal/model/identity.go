package model

// Identity is an already-verified caller. The vault trusts it completely.
type Identity struct {
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
	// SourceIP is the caller's address as seen by the routing layer, recorded in audit entries.
	SourceIP string `json:"-"`
}
