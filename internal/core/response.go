package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"screeningcomms/internal/types"
)

// ErrorBody is the error envelope {"error":{"message":...}}. Error codes
// are logged, not returned; the request id travels in X-Request-Id.
type ErrorBody struct {
	Error ErrorMessage `json:"error"`
}

// ErrorMessage is the single field returned to callers.
type ErrorMessage struct {
	Message string `json:"message"`
}

const unexpectedMessage = "an unexpected error occurred"

// JSON writes data with the given status. A marshalling failure becomes a
// 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorBody{Error: ErrorMessage{Message: "failed to marshal response"}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as an error envelope. An AppError keeps its message and
// maps to its HTTP status; anything else, nil included, is a generic 500.
// Wrapped causes are never exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), ErrorBody{Error: ErrorMessage{Message: appErr.Message}})
		return
	}
	JSON(w, r, http.StatusInternalServerError, ErrorBody{Error: ErrorMessage{Message: unexpectedMessage}})
}
