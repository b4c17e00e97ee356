package httpadapter

import (
	"net/http"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// mapErrorToHTTPStatus translates domain error kinds to statuses. Denied
// requests get a generic 403; the body never reveals whether the owner or
// the grant exists.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrChunking):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrEmbedding),
		domain.IsKind(err, domain.ErrLLM):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is what the client sees. Internal detail stays in the
// logs; denied requests always get the same constant string.
func errorMessage(err error) string {
	switch mapErrorToHTTPStatus(err) {
	case http.StatusForbidden:
		return "not authorized"
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "document not found"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
