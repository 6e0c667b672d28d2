package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/app/session"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

// APIError is the unified error body: what went wrong, its category and what the user can do.
type APIError struct {
	Code     string
	Message  string
	Category string
	Action   string
}

func (e *APIError) Error() string {
	return "[" + e.Code + "] " + e.Message
}

const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotActivated         = "NOT_ACTIVATED"
	ErrCodeAccessExpired        = "ACCESS_EXPIRED"
	ErrCodeCaseNotFound         = "CASE_NOT_FOUND"
	ErrCodeBusy                 = "BUSY"
	ErrCodeNoActiveConversation = "NO_ACTIVE_CONVERSATION"
	ErrCodeAssistantUnavailable = "ASSISTANT_UNAVAILABLE"
	ErrCodeStorageFault         = "STORAGE_FAULT"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// ErrorResponseBody is what every failing endpoint returns. Session is set
// when the failed operation changed the controller, so the front end can re-render.
type ErrorResponseBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Session  *session.Snapshot `json:"session,omitempty"`
}

// toAPIError maps domain errors onto a status code and an APIError.
func toAPIError(err error) (int, *APIError) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, &APIError{
			Code:     ErrCodeValidation,
			Message:  verr.Error(),
			Category: "validation",
			Action:   "Correct the highlighted field and try again.",
		}
	case errors.Is(err, domain.ErrNotActivated):
		return http.StatusForbidden, &APIError{
			Code:     ErrCodeNotActivated,
			Message:  "This device is not activated.",
			Category: "access",
			Action:   "Enter your 6-digit activation code.",
		}
	case errors.Is(err, domain.ErrExpiredAccess):
		return http.StatusForbidden, &APIError{
			Code:     ErrCodeAccessExpired,
			Message:  "Access has expired.",
			Category: "access",
			Action:   access.RenewalMessage,
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, &APIError{
			Code:     ErrCodeCaseNotFound,
			Message:  "The case does not exist.",
			Category: "case",
			Action:   "Pick a case from the history or start a new one.",
		}
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, &APIError{
			Code:     ErrCodeBusy,
			Message:  "A request is already in progress.",
			Category: "case",
			Action:   "Wait for the current answer before sending again.",
		}
	case errors.Is(err, domain.ErrNoActiveConversation):
		return http.StatusConflict, &APIError{
			Code:     ErrCodeNoActiveConversation,
			Message:  "There is no active case.",
			Category: "case",
			Action:   "Submit the intake form or open a case from the history.",
		}
	case errors.Is(err, domain.ErrAssistantUnavailable):
		return http.StatusServiceUnavailable, &APIError{
			Code:     ErrCodeAssistantUnavailable,
			Message:  "The assistant is unavailable.",
			Category: "assistant",
			Action:   "Check your connection and try again.",
		}
	case errors.Is(err, domain.ErrStorageFault):
		return http.StatusInternalServerError, &APIError{
			Code:     ErrCodeStorageFault,
			Message:  "The case store failed.",
			Category: "storage",
			Action:   "Try again. If it keeps failing, free some device storage.",
		}
	default:
		return http.StatusInternalServerError, &APIError{
			Code:     ErrCodeInternal,
			Message:  "An internal error occurred.",
			Category: "system",
			Action:   "Wait a moment and try again.",
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, apiErr *APIError, snap *session.Snapshot) {
	writeJSON(w, status, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Session:  snap,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErrorResponse(w, http.StatusBadRequest, &APIError{
		Code:     ErrCodeValidation,
		Message:  msg,
		Category: "validation",
		Action:   "Fix the request and try again.",
	}, nil)
}
