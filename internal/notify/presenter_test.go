package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/types"
)

func TestPresentAndEncode(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	batch := &types.MessageBatch{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", RoutingPlanID: devPlan}
	messages := []*types.Message{{
		ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Appointment: &types.Appointment{
			NHSNumber: "9449304424",
			StartsAt:  time.Date(2025, 10, 13, 14, 15, 0, 0, time.UTC),
			Clinic:    &types.Clinic{Code: "MDSVH", BSOCode: "MBD", Name: "UNIT"},
		},
	}}

	doc, err := Present(batch, messages)
	require.NoError(t, err)
	body, err := v.Encode(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	attrs := decoded["data"].(map[string]any)["attributes"].(map[string]any)
	assert.Equal(t, devPlan, attrs["routingPlanId"])
	assert.Equal(t, batch.ID, attrs["messageBatchReference"])
	msg := attrs["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, messages[0].ID, msg["messageReference"])
	assert.Equal(t, "9449304424", msg["recipient"].(map[string]any)["nhsNumber"])
}

func TestEncode_RejectsInvalidDocuments(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	_, err = v.Encode(&BatchDocument{Data: BatchData{Type: "MessageBatch", Attributes: BatchAttributes{
		RoutingPlanID:         devPlan,
		MessageBatchReference: "not-a-uuid",
		Messages:              []MessageDocument{{MessageReference: devPlan, Recipient: Recipient{NHSNumber: "1"}}},
	}}})
	assert.Equal(t, types.ErrCodeValidationSchemaMismatch, types.CodeOf(err))

	_, err = v.Encode(&BatchDocument{Data: BatchData{Type: "MessageBatch", Attributes: BatchAttributes{
		RoutingPlanID:         devPlan,
		MessageBatchReference: devPlan,
		Messages:              []MessageDocument{},
	}}})
	assert.Equal(t, types.ErrCodeValidationSchemaMismatch, types.CodeOf(err))
}

func TestPresent_RequiresAppointment(t *testing.T) {
	_, err := Present(&types.MessageBatch{}, []*types.Message{{ID: "m"}})
	assert.Equal(t, types.ErrCodeInternalUnexpected, types.CodeOf(err))
}
