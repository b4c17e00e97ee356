package domain

import "time"

type AuditOutcome string

const (
	OutcomeAuthorized AuditOutcome = "authorized"
	OutcomeDenied     AuditOutcome = "denied"
	OutcomeAnswered   AuditOutcome = "answered"
)

// AuditEntry is the append-only compliance record of one authorization or
// answer event. Entries are write-once and never deleted by the core.
type AuditEntry struct {
	ID          string       `json:"id"`
	RequesterID string       `json:"requester_id"`
	OwnerID     string       `json:"owner_id"`
	Query       string       `json:"query"`
	Scope       AccessScope  `json:"scope"`
	Outcome     AuditOutcome `json:"outcome"`
	CitationIDs []string     `json:"citation_ids,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
