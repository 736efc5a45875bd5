package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"screeningcomms/internal/external"
	"screeningcomms/internal/types"
)

const jsonAPIContentType = "application/vnd.api+json"

// Response is the raw upstream reply to a batch submission.
type Response struct {
	StatusCode    int
	Body          []byte
	CorrelationID string
}

// Client posts message batches to the notify API. It fetches a fresh
// bearer token for every submission.
type Client struct {
	base     *external.BaseClient
	tokens   external.TokenSource
	batchURL string
}

// NewClient creates a Client. base must be built with
// external.WithStatusPassthrough so that every HTTP status reaches the
// outcome classifier.
func NewClient(base *external.BaseClient, tokens external.TokenSource, batchURL string) *Client {
	return &Client{base: base, tokens: tokens, batchURL: batchURL}
}

// SendBatch posts body and returns the upstream status and body. Only
// transport failures and token errors are returned as errors.
func (c *Client) SendBatch(ctx context.Context, body []byte) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create request: %w", err)
	}
	correlationID := uuid.NewString()
	req.Header.Set("Content-Type", jsonAPIContentType)
	req.Header.Set("Accept", jsonAPIContentType)
	req.Header.Set("X-Correlation-Id", correlationID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamNotify, "failed to read notify response", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, CorrelationID: correlationID}, nil
}
