package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gymgate.io/internal/auth"
)

type errorBody struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto the HTTP status taxonomy. Unknown errors
// are logged by the caller and masked with a generic 500 body.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status == http.StatusInternalServerError {
		a.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func classifyError(err error) (int, errorBody) {
	var weak *auth.WeakPasswordError
	if errors.As(err, &weak) {
		return http.StatusBadRequest, errorBody{Error: "password does not meet policy", Violations: weak.Violations}
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: "invalid email or password"}
	case errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized, errorBody{Error: "token has been revoked"}
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "authentication required"}
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, errorBody{Error: "account is inactive"}
	case errors.Is(err, auth.ErrEmailNotVerified):
		return http.StatusForbidden, errorBody{Error: "email address is not verified"}
	case errors.Is(err, auth.ErrNoRoleAssigned):
		return http.StatusForbidden, errorBody{Error: "account has no role assigned"}
	case errors.Is(err, auth.ErrForbiddenRole):
		return http.StatusForbidden, errorBody{Error: "not allowed to grant that role"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden"}
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict, errorBody{Error: "email already registered"}
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusBadRequest, errorBody{Error: "token has expired"}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusBadRequest, errorBody{Error: "invalid token"}
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, errorBody{Error: "password does not meet policy"}
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal server error"}
}

// decodeJSON reads a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", auth.ErrInvalidInput)
	}
	return nil
}
