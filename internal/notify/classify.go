package notify

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"screeningcomms/internal/types"
)

// Outcome is the classification of a batch submission response.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeValidation
	OutcomeRecoverable
	OutcomeUnrecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeValidation:
		return "validation"
	case OutcomeRecoverable:
		return "recoverable"
	default:
		return "unrecoverable"
	}
}

var recoverableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Classify maps an HTTP status to an Outcome.
func Classify(status int) Outcome {
	switch {
	case status == http.StatusCreated:
		return OutcomeSent
	case status == http.StatusBadRequest:
		return OutcomeValidation
	case recoverableStatuses[status]:
		return OutcomeRecoverable
	default:
		return OutcomeUnrecoverable
	}
}

// successBody is the part of a 201 response the sender needs.
type successBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Messages []struct {
				ID               string `json:"id"`
				MessageReference string `json:"messageReference"`
			} `json:"messages"`
		} `json:"attributes"`
	} `json:"data"`
}

// parseSuccess returns the batch id and the upstream message ids keyed by
// messageReference.
func parseSuccess(body []byte) (string, map[string]string, error) {
	var sb successBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return "", nil, types.NewAppError(types.ErrCodeUpstreamNotify, "invalid 201 response body", err)
	}
	if sb.Data.ID == "" {
		return "", nil, types.NewAppError(types.ErrCodeUpstreamNotify, "201 response has no data.id", nil)
	}
	ids := make(map[string]string, len(sb.Data.Attributes.Messages))
	for _, m := range sb.Data.Attributes.Messages {
		ids[m.MessageReference] = m.ID
	}
	return sb.Data.ID, ids, nil
}

var messagePointer = regexp.MustCompile(`/data/attributes/messages/(\d+)/`)

// indexedError is one validation error that targets a message by index.
type indexedError struct {
	Index int
	Raw   json.RawMessage
}

// parseValidationErrors extracts the errors whose source.pointer names a
// message index. Errors about the batch as a whole are not returned.
func parseValidationErrors(body []byte) []indexedError {
	var resp struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return nil
	}
	var out []indexedError
	for _, raw := range resp.Errors {
		var e struct {
			Source struct {
				Pointer string `json:"pointer"`
			} `json:"source"`
		}
		if json.Unmarshal(raw, &e) != nil {
			continue
		}
		m := messagePointer.FindStringSubmatch(e.Source.Pointer)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, indexedError{Index: idx, Raw: raw})
	}
	return out
}

// responseErrors wraps a failed response body for storage: the body itself
// when it is JSON, otherwise {"errors": "<text>"}.
func responseErrors(body []byte) json.RawMessage {
	if json.Valid(body) && len(body) > 0 {
		return append(json.RawMessage(nil), body...)
	}
	wrapped, _ := json.Marshal(map[string]string{"errors": string(body)})
	return wrapped
}
