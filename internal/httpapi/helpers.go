package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"grcore.org/internal/access"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/obs"
	"grcore.org/internal/risk"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError translates service errors into the wire taxonomy.
// Unauthorized stays generic; Forbidden names the missing permission
// codes; a decided-request re-decision is an invalid state transition
// rather than a conflict.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var forbidden *auth.ForbiddenError
	var unknownRoles *auth.UnknownRolesError
	var validation *risk.ValidationError
	var unknownRef *compliance.UnknownReferenceError

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &forbidden):
		for _, code := range forbidden.Missing {
			obs.CountAuthzDenied(code)
		}
		payload := map[string]any{
			"error":               "forbidden",
			"missing_permissions": forbidden.Missing,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, access.ErrAlreadyDecided):
		writeError(w, r, http.StatusBadRequest, "request already decided")
	case errors.As(err, &unknownRoles):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &unknownRef):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, access.ErrInvalidInput),
		errors.Is(err, compliance.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, access.ErrNotFound),
		errors.Is(err, risk.ErrNotFound),
		errors.Is(err, compliance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict),
		errors.Is(err, compliance.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}

func pathSegment(r *http.Request, prefix string) []string {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func locationHeader(w http.ResponseWriter, format string, args ...any) {
	w.Header().Set("Location", fmt.Sprintf(format, args...))
}
