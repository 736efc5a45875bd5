package reports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"screeningcomms/internal/types"
)

// Email is one report mail with a single CSV attachment.
type Email struct {
	To             []string
	Subject        string
	HTMLBody       string
	AttachmentName string
	Attachment     []byte
}

// Mailer delivers report mails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// mailSender is the part of *mail.Client SMTPMailer uses.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends mail over SMTP with mandatory STARTTLS and LOGIN auth.
type SMTPMailer struct {
	client mailSender
	from   string
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSMTP, "failed to configure SMTP client", err)
	}
	return &SMTPMailer{client: client, from: cfg.From, logger: logger}, nil
}

// Send builds and delivers e.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	msg, err := buildMessage(m.from, e)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.WarnContext(ctx, "error sending email", "error", err, "subject", e.Subject)
		return types.NewAppError(types.ErrCodeUpstreamSMTP, "failed to send report email", err)
	}
	m.logger.InfoContext(ctx, "email sent", "subject", e.Subject, "attachment", e.AttachmentName)
	return nil
}

func buildMessage(from string, e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, fmt.Sprintf("invalid sender %q", from), err)
	}
	if err := msg.To(e.To...); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "invalid report recipient", err)
	}
	msg.Subject(e.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, e.HTMLBody)
	if err := msg.AttachReader(e.AttachmentName, bytes.NewReader(e.Attachment),
		mail.WithFileContentType(mail.ContentType("text/csv"))); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to attach report", err)
	}
	return msg, nil
}
