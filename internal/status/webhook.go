// Package status accepts delivery status callbacks from the notify API and
// persists them. The webhook only authenticates and enqueues; the
// persistor drains the queue and writes idempotent status rows.
package status

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"screeningcomms/internal/core"
	"screeningcomms/internal/security"
	"screeningcomms/internal/types"
)

const (
	apiKeyHeader    = "x-api-key"
	signatureHeader = "x-hmac-sha256-signature"

	// maxCallbackBodySize bounds a single callback body. Callbacks carry one
	// status event and are well under this.
	maxCallbackBodySize = 256 * 1024
)

// Enqueuer puts a raw callback body on the status queue.
type Enqueuer interface {
	Send(ctx context.Context, body string) error
}

// WebhookHandler serves POST /message-status/create.
type WebhookHandler struct {
	queue  Enqueuer
	apiKey string
	secret string
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. secret is the HMAC key
// "{application_id}.{api_key}".
func NewWebhookHandler(queue Enqueuer, apiKey, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{queue: queue, apiKey: apiKey, secret: secret, logger: logger}
}

// RegisterRoutes mounts the callback endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/message-status/create", h.Create)
}

type createResult struct {
	Result struct {
		Message string `json:"message"`
	} `json:"result"`
}

// Create verifies the callback and enqueues its body verbatim.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "Failed to read request body", err))
		return
	}

	if err := h.validate(r.Header, body); err != nil {
		h.reject(w, r, err)
		return
	}

	if err := h.queue.Send(r.Context(), string(body)); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to queue message status update", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"Internal server error processing request", err))
		return
	}

	var resp createResult
	resp.Result.Message = "Message status update queued"
	core.JSON(w, r, http.StatusOK, resp)
}

// validate checks the API key and then the body signature.
func (h *WebhookHandler) validate(header http.Header, body []byte) error {
	keys := header.Values(apiKeyHeader)
	if len(keys) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingHeader, "Missing API key header", nil)
	}
	if !security.ConstantTimeEqual(keys[0], h.apiKey) {
		return types.NewAppError(types.ErrCodeValidationInvalidAPIKey, "Invalid API key", nil)
	}
	sigs := header.Values(signatureHeader)
	if len(sigs) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingHeader, "Missing signature header", nil)
	}
	if !security.Verify(h.secret, body, sigs[0]) {
		return types.NewAppError(types.ErrCodeValidationSignature, "Signature does not match", nil)
	}
	return nil
}

func (h *WebhookHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "message status callback rejected", "error", err, "code", types.CodeOf(err))
	core.Error(w, r, err)
}
