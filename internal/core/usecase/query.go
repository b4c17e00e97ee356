package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

const summaryQuestion = "Summarize the key findings, diagnoses, medications and dates across these health records."

// QueryUseCase is the single query boundary: gate, retrieve, compose,
// persist, audit.
type QueryUseCase struct {
	gate     *AccessGate
	engine   *RetrievalEngine
	composer *Composer
	answers  ports.AnswerStore
	audit    ports.AuditSink
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewQueryUseCase(
	gate *AccessGate,
	engine *RetrievalEngine,
	composer *Composer,
	answers ports.AnswerStore,
	audit ports.AuditSink,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		gate:     gate,
		engine:   engine,
		composer: composer,
		answers:  answers,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (uc *QueryUseCase) Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	return uc.answer(ctx, req, uc.composer.Compose)
}

// Recommend runs the same gate, retrieval and audit pipeline as Query,
// but composes record-aware recommendations. An empty vault still yields
// general guidance.
func (uc *QueryUseCase) Recommend(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	return uc.answer(ctx, req, uc.composer.Recommend)
}

type composeFunc func(ctx context.Context, question, ownerID string, chunks []domain.ScoredChunk, policy domain.RetrievalPolicy) (*domain.Answer, error)

func (uc *QueryUseCase) answer(ctx context.Context, req domain.QueryRequest, compose composeFunc) (*domain.Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query",
			fmt.Errorf("question is required"))
	}

	policy, err := uc.gate.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.TopK > 0 && req.TopK < policy.TopK {
		policy.TopK = req.TopK
	}

	// The policy deadline applies on top of whatever deadline the caller
	// already set; the shorter one wins.
	ctx, cancel := context.WithTimeout(ctx, policy.Deadline)
	defer cancel()

	chunks, err := uc.engine.Search(ctx, req.OwnerID, req.Question, policy)
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexUnavailable) {
			chunks = nil
		} else {
			return nil, fmt.Errorf("search vault: %w", err)
		}
	}

	answer, err := compose(ctx, req.Question, req.OwnerID, chunks, policy)
	if err != nil {
		return nil, fmt.Errorf("compose answer: %w", err)
	}
	if answer.Degraded {
		uc.logger.Warn("degraded to citation-only answer",
			"owner_id", req.OwnerID, "scope", string(req.Scope))
	}

	if err := uc.answers.Save(ctx, answer); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	citationIDs := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		citationIDs = append(citationIDs, c.ChunkID)
	}
	completion := domain.AuditEntry{
		ID:          uc.newID(),
		RequesterID: req.RequesterID,
		OwnerID:     req.OwnerID,
		Query:       req.Question,
		Scope:       policy.Scope,
		Outcome:     domain.OutcomeAnswered,
		CitationIDs: citationIDs,
		CreatedAt:   uc.now().UTC(),
	}
	if err := uc.audit.Record(ctx, completion); err != nil {
		return nil, fmt.Errorf("record answer audit: %w", err)
	}

	return answer, nil
}

// Summarize produces an overview of the owner's vault. Self scope only;
// the gate denies everything else.
func (uc *QueryUseCase) Summarize(ctx context.Context, requesterID, ownerID string) (*domain.Answer, error) {
	return uc.Query(ctx, domain.QueryRequest{
		RequesterID: requesterID,
		OwnerID:     ownerID,
		Scope:       domain.ScopeSelf,
		Question:    summaryQuestion,
	})
}
