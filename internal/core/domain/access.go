package domain

import "time"

type AccessScope string

const (
	ScopeSelf      AccessScope = "self"
	ScopeEmergency AccessScope = "emergency"
	ScopeConsented AccessScope = "consented-third-party"
)

func (s AccessScope) Valid() bool {
	switch s {
	case ScopeSelf, ScopeEmergency, ScopeConsented:
		return true
	}
	return false
}

// AccessGrant is created by the external auth/consent collaborator and is
// read-only to the core.
type AccessGrant struct {
	RequesterID string      `json:"requester_id"`
	OwnerID     string      `json:"owner_id"`
	Scope       AccessScope `json:"scope"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Covers reports whether the grant authorizes the given request at the
// given instant. Expiry is checked on every call, so a grant that lapses
// mid-session stops authorizing immediately.
func (g AccessGrant) Covers(requesterID, ownerID string, scope AccessScope, now time.Time) bool {
	return g.RequesterID == requesterID &&
		g.OwnerID == ownerID &&
		g.Scope == scope &&
		now.Before(g.ExpiresAt)
}

// RetrievalPolicy is selected by the access gate and threaded through
// retrieval and composition. The emergency policy trades completeness for
// latency: fewer candidates, semantic-only scoring, a tighter deadline,
// and citations are mandatory.
type RetrievalPolicy struct {
	Scope            AccessScope
	TopK             int
	Mode             RetrievalMode
	RequireCitations bool
	Deadline         time.Duration
}
