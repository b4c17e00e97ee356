package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

// AccessGate authorizes one query against the requester's relationship to
// the record owner and picks the retrieval policy for the authorized
// scope. Every decision, including a denial, is written to the audit sink
// before any retrieval runs.
type AccessGate struct {
	grants ports.GrantStore
	audit  ports.AuditSink

	normal    domain.RetrievalPolicy
	emergency domain.RetrievalPolicy

	now   func() time.Time
	newID func() string
}

func NewAccessGate(grants ports.GrantStore, audit ports.AuditSink, normal, emergency domain.RetrievalPolicy) *AccessGate {
	return &AccessGate{
		grants:    grants,
		audit:     audit,
		normal:    normal,
		emergency: emergency,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NormalPolicy is the default self/consented policy: full candidate set,
// hybrid scoring.
func NormalPolicy() domain.RetrievalPolicy {
	return domain.RetrievalPolicy{
		Scope:            domain.ScopeSelf,
		TopK:             8,
		Mode:             domain.ModeHybrid,
		RequireCitations: false,
		Deadline:         30 * time.Second,
	}
}

// EmergencyPolicy trades completeness for latency: fewer candidates,
// semantic-only scoring, mandatory citations, tight deadline.
func EmergencyPolicy() domain.RetrievalPolicy {
	return domain.RetrievalPolicy{
		Scope:            domain.ScopeEmergency,
		TopK:             4,
		Mode:             domain.ModeSemantic,
		RequireCitations: true,
		Deadline:         10 * time.Second,
	}
}

// Authorize decides the request and records the decision. A denied
// request returns domain.ErrAccessDenied after exactly one audit entry;
// the error carries no hint of whether the owner exists.
func (g *AccessGate) Authorize(ctx context.Context, req domain.QueryRequest) (domain.RetrievalPolicy, error) {
	policy, authorized, err := g.decide(ctx, req)
	if err != nil {
		return domain.RetrievalPolicy{}, err
	}

	outcome := domain.OutcomeDenied
	if authorized {
		outcome = domain.OutcomeAuthorized
	}
	entry := domain.AuditEntry{
		ID:          g.newID(),
		RequesterID: req.RequesterID,
		OwnerID:     req.OwnerID,
		Query:       req.Question,
		Scope:       req.Scope,
		Outcome:     outcome,
		CreatedAt:   g.now().UTC(),
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		return domain.RetrievalPolicy{}, fmt.Errorf("record authorization: %w", err)
	}

	if !authorized {
		return domain.RetrievalPolicy{}, domain.ErrAccessDenied
	}
	return policy, nil
}

func (g *AccessGate) decide(ctx context.Context, req domain.QueryRequest) (domain.RetrievalPolicy, bool, error) {
	if !req.Scope.Valid() || req.RequesterID == "" || req.OwnerID == "" {
		return domain.RetrievalPolicy{}, false, nil
	}

	switch req.Scope {
	case domain.ScopeSelf:
		if req.RequesterID == req.OwnerID {
			return withScope(g.normal, domain.ScopeSelf), true, nil
		}
		return domain.RetrievalPolicy{}, false, nil

	case domain.ScopeEmergency, domain.ScopeConsented:
		grant, err := g.grants.FindGrant(ctx, req.RequesterID, req.OwnerID, req.Scope)
		if err != nil {
			return domain.RetrievalPolicy{}, false, fmt.Errorf("find access grant: %w", err)
		}
		if grant == nil || !grant.Covers(req.RequesterID, req.OwnerID, req.Scope, g.now()) {
			return domain.RetrievalPolicy{}, false, nil
		}
		if req.Scope == domain.ScopeEmergency {
			return withScope(g.emergency, domain.ScopeEmergency), true, nil
		}
		return withScope(g.normal, domain.ScopeConsented), true, nil
	}

	return domain.RetrievalPolicy{}, false, nil
}

func withScope(policy domain.RetrievalPolicy, scope domain.AccessScope) domain.RetrievalPolicy {
	policy.Scope = scope
	return policy
}
