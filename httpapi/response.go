package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/httpapi/policylimit"
	"github.com/Gliksbot/gliksbot/skillstore"
)

const (
	errorCodeUnauthorized   = "unauthorized"
	errorCodePolicyRejected = "policy_rejected"
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeBusy           = "busy"
	errorCodeTimeout        = "timeout"
	errorCodeRuntime        = "runtime_error"
)

var errInvalidRequest = errors.New("invalid request")

// apiError mirrors spec §7's user-visible failure shape: `{error:{class,
// message}}` alongside the session id wherever one exists.
type apiError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error     apiError         `json:"error"`
	SessionID collab.SessionID `json:"session_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, class, message string) {
	writeErrorWithSession(w, status, class, message, "")
}

func writeErrorWithSession(w http.ResponseWriter, status int, class, message string, session collab.SessionID) {
	writeJSON(w, status, apiErrorResponse{
		Error:     apiError{Class: class, Message: message},
		SessionID: session,
	})
}

func writeMappedError(w http.ResponseWriter, err error) {
	writeMappedErrorWithSession(w, err, "")
}

func writeMappedErrorWithSession(w http.ResponseWriter, err error, session collab.SessionID) {
	status, class := mapRuntimeError(err)
	writeErrorWithSession(w, status, class, err.Error(), session)
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeMappedError(w, invalidRequestError(message))
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return invalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", policylimit.ErrRequestTooLarge, maxBytesErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return invalidRequestError("request body is required")
		}
		return invalidRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidRequestError("request body must contain exactly one JSON object")
	}
	return nil
}

// mapRuntimeError classifies err against the collab error taxonomy
// (spec §7) the way the teacher's mapRuntimeError does for its own
// sentinel set.
func mapRuntimeError(err error) (int, string) {
	switch {
	case errors.Is(err, policylimit.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, errorCodePolicyRejected
	case errors.Is(err, policylimit.ErrRequestTimedOut), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorCodeTimeout
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, collab.ErrDexterRequired),
		errors.Is(err, collab.ErrNoSlotsEnabled),
		errors.Is(err, collab.ErrUnknownProvider),
		errors.Is(err, collab.ErrConfig),
		errors.Is(err, collab.ErrEventInvalid),
		errors.Is(err, collab.ErrInvalidSessionID):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, collab.ErrSessionNotFound), errors.Is(err, skillstore.ErrSkillNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, collab.ErrBusy):
		return http.StatusServiceUnavailable, errorCodeBusy
	case errors.Is(err, collab.ErrTimeout):
		return http.StatusGatewayTimeout, errorCodeTimeout
	case errors.Is(err, collab.ErrRunNotContinuable):
		return http.StatusConflict, errorCodeInvalidRequest
	case errors.Is(err, context.Canceled):
		return http.StatusInternalServerError, errorCodeRuntime
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}

func invalidRequestError(message string) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, message)
}
