package reports

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"screeningcomms/internal/types"
)

type fakeSMTP struct {
	msgs []*mail.Msg
	err  error
}

func (f *fakeSMTP) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func sampleEmail() Email {
	return Email{
		To:             []string{"ops@example.nhs.uk", "lead@example.nhs.uk"},
		Subject:        "Breast screening digital comms aggregate report",
		HTMLBody:       Body(KindAggregate),
		AttachmentName: "MBD-aggregate-report.csv",
		Attachment:     []byte("Date,BSO code\n2025-10-06,MBD\n"),
	}
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("reports@example.nhs.uk", sampleEmail())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "reports@example.nhs.uk")
	assert.Contains(t, raw, "ops@example.nhs.uk")
	assert.Contains(t, raw, "lead@example.nhs.uk")
	assert.Contains(t, raw, "Breast screening digital comms aggregate report")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "text/csv")
	assert.Contains(t, raw, "MBD-aggregate-report.csv")
}

func TestBuildMessage_InvalidSender(t *testing.T) {
	_, err := buildMessage("not an address", sampleEmail())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidPayload, types.CodeOf(err))
}

func TestSMTPMailer_Send(t *testing.T) {
	smtp := &fakeSMTP{}
	m := &SMTPMailer{client: smtp, from: "reports@example.nhs.uk", logger: discardLogger()}

	require.NoError(t, m.Send(context.Background(), sampleEmail()))
	require.Len(t, smtp.msgs, 1)
}

func TestSMTPMailer_SendFailure(t *testing.T) {
	smtp := &fakeSMTP{err: errors.New("535 authentication failed")}
	m := &SMTPMailer{client: smtp, from: "reports@example.nhs.uk", logger: discardLogger()}

	err := m.Send(context.Background(), sampleEmail())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamSMTP, types.CodeOf(err))
}

func TestNewSMTPMailer(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{
		Host: "smtp.example.com", Port: 587, Username: "user", Password: "pw",
		From: "reports@example.nhs.uk",
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, m.client)
}
