package notify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"screeningcomms/internal/types"
)

//go:embed schema/message_batch.json
var messageBatchSchema []byte

const messageBatchSchemaURL = "https://screeningcomms.local/schema/message-batch.json"

// BatchDocument is the JSON:API request body for one batch.
type BatchDocument struct {
	Data BatchData `json:"data"`
}

// BatchData is the top-level resource of a BatchDocument.
type BatchData struct {
	Type       string          `json:"type"`
	Attributes BatchAttributes `json:"attributes"`
}

// BatchAttributes carries the routing plan and the messages.
type BatchAttributes struct {
	RoutingPlanID         string            `json:"routingPlanId"`
	MessageBatchReference string            `json:"messageBatchReference"`
	Messages              []MessageDocument `json:"messages"`
}

// MessageDocument is one recipient in a batch.
type MessageDocument struct {
	MessageReference string            `json:"messageReference"`
	Recipient        Recipient         `json:"recipient"`
	Personalisation  map[string]string `json:"personalisation,omitempty"`
}

// Recipient identifies the participant.
type Recipient struct {
	NHSNumber string `json:"nhsNumber"`
}

// Present builds the request body for batch. messages must have their
// appointment and clinic hydrated; their order is the order of the
// document and therefore the index space of validation errors.
func Present(batch *types.MessageBatch, messages []*types.Message) (*BatchDocument, error) {
	doc := &BatchDocument{Data: BatchData{
		Type: "MessageBatch",
		Attributes: BatchAttributes{
			RoutingPlanID:         batch.RoutingPlanID,
			MessageBatchReference: batch.ID,
			Messages:              make([]MessageDocument, 0, len(messages)),
		},
	}}
	for _, m := range messages {
		if m.Appointment == nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("message %s has no appointment loaded", m.ID), nil)
		}
		doc.Data.Attributes.Messages = append(doc.Data.Attributes.Messages, MessageDocument{
			MessageReference: m.ID,
			Recipient:        Recipient{NHSNumber: m.Appointment.NHSNumber},
			Personalisation:  Personalise(m.Appointment),
		})
	}
	return doc, nil
}

// SchemaValidator checks outgoing documents against the message batch
// schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(messageBatchSchema))
	if err != nil {
		return nil, fmt.Errorf("notify: parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(messageBatchSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("notify: add schema: %w", err)
	}
	sch, err := c.Compile(messageBatchSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("notify: compile schema: %w", err)
	}
	return &SchemaValidator{schema: sch}, nil
}

// Encode marshals doc and validates it. A schema violation is a
// programming error and is reported as ErrCodeValidationSchemaMismatch.
func (v *SchemaValidator) Encode(doc *BatchDocument) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode message batch", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode message batch", err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationSchemaMismatch,
			"message batch does not match schema", err,
			map[string]any{"batch_id": doc.Data.Attributes.MessageBatchReference})
	}
	return body, nil
}
