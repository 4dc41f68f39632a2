package http

import (
	"errors"
	"net/http"

	"delat/internal/amqp"
	"delat/internal/core"
	"delat/internal/dedup"
	"delat/internal/log"
	"delat/internal/services"
	"delat/internal/storage"
)

// recordKinds maps collection path segments to record kinds.
var recordKinds = map[string]string{
	"expenses":    amqp.KindExpense,
	"incomes":     amqp.KindIncome,
	"settlements": amqp.KindSettlement,
}

// requestLogger returns the request-scoped logger under the http component.
func requestLogger(r *http.Request) *log.Logger {
	return log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
}

// writeServiceError maps a service error onto a response. Unexpected errors
// are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error, matches []dedup.Match) {
	switch {
	case errors.Is(err, services.ErrPossibleDuplicate):
		ConflictError("possible duplicate, resend with confirm to store it anyway", toMatchesJSON(matches)).Write(w)
	case core.IsValidation(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	default:
		log.NewStructuredLogger(requestLogger(r)).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		InternalServerError("internal error").Write(w)
	}
}
