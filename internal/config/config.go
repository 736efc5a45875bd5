// Package config defines the process configuration for the notification
// pipeline. Configuration is loaded once at process start and passed to
// components as typed subsets; components never read the environment.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Only the sections a binary asks for are validated, so the webhook server
// does not need SMTP credentials and the reporter does not need the
// mailbox certificate.
package config

import (
	"time"

	"screeningcomms/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required"`
	Service     string `envconfig:"LOGGER_NAME" default:"screeningcomms"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// NotificationsEnv selects the routing plan table. Anything other than
	// "prod" uses the dev plans.
	NotificationsEnv string `envconfig:"NOTIFICATIONS_ENV" default:"dev"`

	Server        ServerConfig
	AWS           AWSConfig
	Database      DatabaseConfig `validate:"-"`
	Mailbox       MailboxConfig  `validate:"-"`
	Blob          BlobConfig     `validate:"-"`
	Queue         QueueConfig    `validate:"-"`
	Notify        NotifyConfig   `validate:"-"`
	Webhook       WebhookConfig  `validate:"-"`
	SMTP          SMTPConfig     `validate:"-"`
	Reports       ReportsConfig  `validate:"-"`
	Observability ObservabilityConfig

	// Build is filled by NewBuildInfo after envconfig runs.
	Build BuildInfo
}

// ServerConfig holds webhook HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// AWSConfig holds regional settings shared by the S3, SQS, SSM and
// CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-2"`
	// EndpointURL points the SDK at a local emulator. S3 switches to
	// path-style addressing when it is set.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns int32        `envconfig:"DB_MAX_CONNS" default:"5" validate:"min=1"`
}

// MailboxConfig configures the store-and-forward mailbox client.
type MailboxConfig struct {
	BaseURL    string        `envconfig:"MESH_BASE_URL" validate:"required,url"`
	Inbox      string        `envconfig:"MESH_INBOX_NAME" validate:"required"`
	Password   SecretString  `envconfig:"MESH_PASSWORD" validate:"required"`
	SharedKey  SecretString  `envconfig:"MESH_SHARED_KEY" validate:"required"`
	ClientCert SecretString  `envconfig:"MESH_CLIENT_CERT"`
	ClientKey  SecretString  `envconfig:"MESH_CLIENT_PRIVATE_KEY"`
	CACert     string        `envconfig:"MESH_CA_CERT"`
	Timeout    time.Duration `envconfig:"MESH_HTTP_TIMEOUT" default:"10s"`
}

// BlobConfig names the two object-storage containers.
type BlobConfig struct {
	FeedContainer    string `envconfig:"BLOB_FEED_CONTAINER" default:"notifications-mesh-data" validate:"required"`
	ReportsContainer string `envconfig:"BLOB_REPORTS_CONTAINER" default:"notifications-reports" validate:"required"`
}

// QueueConfig locates the two durable queues.
type QueueConfig struct {
	StatusURL         string `envconfig:"QUEUE_STATUS_URL" validate:"required,url"`
	RetryURL          string `envconfig:"QUEUE_RETRY_URL" validate:"required,url"`
	StatusName        string `envconfig:"QUEUE_STATUS_NAME" default:"notifications-message-status-updates"`
	RetryName         string `envconfig:"QUEUE_RETRY_NAME" default:"notifications-message-batch-retries"`
	StatusReceiveSize int    `envconfig:"STATUS_RECEIVE_BATCH" default:"50" validate:"min=1"`
	VisibilityTimeout int32  `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"300" validate:"min=0"`
}

// NotifyConfig configures submission to the notify API.
type NotifyConfig struct {
	BatchURL      string       `envconfig:"NOTIFY_API_BATCH_URL" validate:"required,url"`
	OAuthTokenURL string       `envconfig:"NOTIFY_OAUTH_TOKEN_URL" validate:"required,url"`
	APIKey        SecretString `envconfig:"NOTIFY_API_KEY" validate:"required"`
	KID           string       `envconfig:"NOTIFY_API_KID"`
	PrivateKey    SecretString `envconfig:"NOTIFY_PRIVATE_KEY"`
	// SandboxPrefixes lists batch URL prefixes that accept a static bearer
	// token instead of the OAuth client-credentials grant.
	SandboxPrefixes []string      `envconfig:"NOTIFY_SANDBOX_PREFIXES" default:"http://localhost,https://sandbox.api.service.nhs.uk"`
	RetryLimit      int           `envconfig:"NOTIFICATIONS_BATCH_RETRY_LIMIT" default:"5" validate:"min=0"`
	RetryDelayBase  int           `envconfig:"NOTIFICATIONS_BATCH_RETRY_DELAY" default:"0" validate:"min=0"`
	HTTPTimeout     time.Duration `envconfig:"NOTIFY_HTTP_TIMEOUT" default:"10s"`
	WorkingDaysOnly bool          `envconfig:"NOTIFICATIONS_WORKING_DAYS_ONLY" default:"true"`
	// StaleAfter is how long a batch may stay scheduled before it is
	// requeued as abandoned.
	StaleAfter time.Duration `envconfig:"NOTIFICATIONS_BATCH_STALE_AFTER" default:"1h" validate:"min=1m"`
}

// WebhookConfig holds the shared secrets for inbound status callbacks.
type WebhookConfig struct {
	ApplicationID string       `envconfig:"APPLICATION_ID" validate:"required"`
	APIKey        SecretString `envconfig:"NOTIFY_WEBHOOK_API_KEY" validate:"required"`
}

// Secret returns the HMAC key "{application_id}.{api_key}".
func (w WebhookConfig) Secret() string {
	return w.ApplicationID + "." + w.APIKey.Unmask()
}

// SMTPConfig configures the report mailer.
type SMTPConfig struct {
	Enabled  bool          `envconfig:"NOTIFICATIONS_SMTP_IS_ENABLED" default:"false"`
	Host     string        `envconfig:"SMTP_HOST" default:"smtp.office365.com" validate:"required"`
	Port     int           `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	Username string        `envconfig:"SMTP_USERNAME" validate:"required_if=Enabled true"`
	Password SecretString  `envconfig:"SMTP_PASSWORD" validate:"required_if=Enabled true"`
	From     string        `envconfig:"SMTP_FROM" validate:"omitempty,email"`
	Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"10s"`
}

// Sender returns the From address, defaulting to the SMTP username.
func (s SMTPConfig) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// ReportsConfig lists the BSOs and recipients of the operational reports.
type ReportsConfig struct {
	BSOCodes   []string `envconfig:"REPORTS_BSO_CODES" default:"MBD" validate:"min=1"`
	Recipients []string `envconfig:"REPORTS_RECIPIENTS"`
}

// ObservabilityConfig configures the CloudWatch gauges and job events.
// An empty namespace turns metrics into a no-op.
type ObservabilityConfig struct {
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE"`
}

// BuildInfo identifies the running binary. It is never read from the
// environment.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
	Dirty     bool
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
