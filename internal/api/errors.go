package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"example.com/fitstreak/internal/domain"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "1"

type errorMapping struct {
	target error
	status int
	code   string
}

var domainErrors = []errorMapping{
	{domain.ErrNotMember, http.StatusForbidden, "not_member"},
	{domain.ErrInvalidDate, http.StatusBadRequest, "invalid_date"},
	{domain.ErrInvalidActivityType, http.StatusBadRequest, "invalid_activity_type"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "validation_failed"},
	{domain.ErrGroupNotFound, http.StatusNotFound, "group_not_found"},
	{domain.ErrInvitationNotFound, http.StatusNotFound, "invitation_not_found"},
	{domain.ErrInvitationClosed, http.StatusConflict, "invitation_closed"},
	{domain.ErrInvitationMismatch, http.StatusForbidden, "invitation_mismatch"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
	{domain.ErrConcurrentUpdate, http.StatusServiceUnavailable, "store_unavailable"},
}

// writeDomainError maps engine errors onto HTTP status codes. Unknown errors are logged and
// reported without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, mapping := range domainErrors {
		if errors.Is(err, mapping.target) {
			if mapping.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", retryAfterSeconds)
				h.logger.WarnContext(r.Context(), "store unavailable", "path", r.URL.Path, "error", err)
			}
			writeError(w, mapping.status, mapping.code, err.Error())
			return
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "timeout", "request was cancelled")
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

// writeValidationError reports the first failed field. Malformed dates keep the engine's code.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	first := verrs[0]
	field := toSnake(first.Field())
	if first.Tag() == "datetime" {
		writeError(w, http.StatusBadRequest, "invalid_date", fmt.Sprintf("%s must match %s", field, first.Param()))
		return
	}
	detail := fmt.Sprintf("%s failed %s", field, first.Tag())
	if first.Param() != "" {
		detail += "=" + first.Param()
	}
	writeError(w, http.StatusBadRequest, "validation_failed", detail)
}

func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
