package httpadapter

import (
	"net/http"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInitialization):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrievalFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
