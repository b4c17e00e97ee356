// Package httpadapter exposes the vault's boundary operations over HTTP.
// The API trusts the authenticated requester identity placed in the
// X-Requester-Id header by the upstream auth collaborator.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/usecase"
	"github.com/medivault/health-record-vault/internal/observability/metrics"
)

const requesterIDHeader = "X-Requester-Id"

// maxUploadBytes bounds one document upload.
const maxUploadBytes = 32 << 20

type Router struct {
	query     *usecase.QueryUseCase
	ingest    *usecase.IngestUseCase
	documents *usecase.DocumentUseCase
	metrics   *metrics.APIMetrics
	service   string
	logger    *slog.Logger
}

func NewRouter(
	query *usecase.QueryUseCase,
	ingest *usecase.IngestUseCase,
	documents *usecase.DocumentUseCase,
	apiMetrics *metrics.APIMetrics,
	service string,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		query:     query,
		ingest:    ingest,
		documents: documents,
		metrics:   apiMetrics,
		service:   service,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.handleQuery)
	mux.HandleFunc("/v1/recommendations", rt.handleRecommendations)
	mux.HandleFunc("/v1/summary", rt.handleSummary)
	mux.HandleFunc("/v1/documents", rt.handleUpload)
	mux.HandleFunc("/v1/documents/", rt.handleDocumentByID)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleQuery(w http.ResponseWriter, r *http.Request) {
	rt.handleAnswer(w, r, rt.query.Query)
}

func (rt *Router) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	rt.handleAnswer(w, r, rt.query.Recommend)
}

func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request, answerFn func(context.Context, domain.QueryRequest) (*domain.Answer, error)) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	requesterID := requesterID(r)
	if requesterID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "requester identity is required"})
		return
	}

	var req struct {
		OwnerID  string `json:"owner_id"`
		Scope    string `json:"scope"`
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	scope := domain.AccessScope(req.Scope)
	if req.Scope == "" {
		scope = domain.ScopeSelf
	}
	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = requesterID
	}

	start := time.Now()
	answer, err := answerFn(r.Context(), domain.QueryRequest{
		RequesterID: requesterID,
		OwnerID:     ownerID,
		Scope:       scope,
		Question:    req.Question,
		TopK:        req.TopK,
	})
	if err != nil {
		if rt.metrics != nil && domain.IsKind(err, domain.ErrAccessDenied) {
			rt.metrics.RecordDenied(rt.service, string(scope))
		}
		rt.writeError(w, r, err)
		return
	}

	if rt.metrics != nil {
		// The mode label reflects the policy the gate actually selected.
		rt.metrics.RecordQuery(rt.service, string(scope), string(answer.Mode),
			len(answer.SourceChunkIDs), answer.Confidence, answer.Degraded, time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	requesterID := requesterID(r)
	if requesterID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "requester identity is required"})
		return
	}

	answer, err := rt.query.Summarize(r.Context(), requesterID, requesterID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	requesterID := requesterID(r)
	if requesterID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "requester identity is required"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	kind := domain.DocumentKind(r.FormValue("kind"))
	doc, err := rt.ingest.Upload(
		r.Context(),
		requesterID,
		kind,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	requesterID := requesterID(r)
	if requesterID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "requester identity is required"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := rt.documents.GetByID(r.Context(), requesterID, id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := rt.documents.Delete(r.Context(), requesterID, id); err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err)})
}

func requesterID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(requesterIDHeader))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
