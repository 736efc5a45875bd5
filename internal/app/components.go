package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"screeningcomms/internal/core"
	"screeningcomms/internal/db"
	"screeningcomms/internal/external"
	"screeningcomms/internal/feed"
	"screeningcomms/internal/mesh"
	"screeningcomms/internal/metrics"
	"screeningcomms/internal/notify"
	"screeningcomms/internal/queue"
	"screeningcomms/internal/reports"
	"screeningcomms/internal/security"
	"screeningcomms/internal/status"
	"screeningcomms/internal/storage"
	"screeningcomms/internal/types"
)

const userAgent = "screeningcomms/1.0"

func (a *App) transactor() *db.Transactor {
	return db.NewTransactor(a.Pool)
}

// FeedStore is the feed blob container.
func (a *App) FeedStore() *storage.Store {
	client := storage.NewS3Client(a.AWS, a.Config.AWS.EndpointURL)
	return storage.NewStore(client, a.Config.Blob.FeedContainer, a.Logger)
}

// ReportsStore is the reports blob container.
func (a *App) ReportsStore() *storage.Store {
	client := storage.NewS3Client(a.AWS, a.Config.AWS.EndpointURL)
	return storage.NewStore(client, a.Config.Blob.ReportsContainer, a.Logger)
}

func (a *App) sqsClient() *sqs.Client {
	return sqs.NewFromConfig(a.AWS, func(o *sqs.Options) {
		if a.Config.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(a.Config.AWS.EndpointURL)
		}
	})
}

// StatusQueue is the queue of raw webhook bodies.
func (a *App) StatusQueue() *queue.Queue {
	q := a.Config.Queue
	return queue.New(a.sqsClient(), q.StatusName, q.StatusURL, q.VisibilityTimeout, a.Logger)
}

// RetryQueue is the queue of batch retry tokens.
func (a *App) RetryQueue() *queue.Queue {
	q := a.Config.Queue
	return queue.New(a.sqsClient(), q.RetryName, q.RetryURL, q.VisibilityTimeout, a.Logger)
}

// Mailbox builds the mutual-TLS mailbox client.
func (a *App) Mailbox() (*mesh.Client, error) {
	m := a.Config.Mailbox
	httpClient, err := security.NewMTLSClient(security.TLSMaterial{
		CertPEM: []byte(m.ClientCert.Unmask()),
		KeyPEM:  []byte(m.ClientKey.Unmask()),
		CAPEM:   []byte(m.CACert),
	}, m.Timeout)
	if err != nil {
		return nil, fmt.Errorf("building mailbox transport: %w", err)
	}
	base := external.NewBaseClient(httpClient, "mesh", external.DefaultRetryPolicy(), userAgent,
		external.WithUpstreamCode(types.ErrCodeUpstreamMailbox))
	return mesh.NewClient(base, mesh.Config{
		BaseURL:   m.BaseURL,
		Mailbox:   m.Inbox,
		Password:  m.Password.Unmask(),
		SharedKey: m.SharedKey.Unmask(),
	}, a.Logger), nil
}

// Poller builds the FetchFeed job.
func (a *App) Poller() (*feed.Poller, error) {
	mailbox, err := a.Mailbox()
	if err != nil {
		return nil, err
	}
	return feed.NewPoller(mailbox, a.FeedStore(), types.RealClock{}, a.Logger), nil
}

// Ingestor builds the IngestAppointments job.
func (a *App) Ingestor() *feed.Ingestor {
	return feed.NewIngestor(a.FeedStore(), a.FeedUnitOfWork(), types.RealClock{}, a.Logger)
}

// FeedUnitOfWork opens transactions over the clinic and appointment tables.
func (a *App) FeedUnitOfWork() feed.UnitOfWork {
	return feedUnitOfWork{tx: a.transactor()}
}

// NotifyClient builds the notify API client and its token source.
func (a *App) NotifyClient() (*notify.Client, error) {
	n := a.Config.Notify
	httpClient := &http.Client{Timeout: n.HTTPTimeout}

	tokenBase := external.NewBaseClient(httpClient, "notify-oauth", external.NoRetry(), userAgent,
		external.WithStatusPassthrough(), external.WithUpstreamCode(types.ErrCodeAuthNotifyToken))
	tokens, err := external.NewNotifyTokenSource(tokenBase, n.BatchURL, n.SandboxPrefixes, external.TokenConfig{
		TokenURL:   n.OAuthTokenURL,
		APIKey:     n.APIKey.Unmask(),
		KID:        n.KID,
		PrivateKey: []byte(n.PrivateKey.Unmask()),
		Logger:     a.Logger,
	})
	if err != nil {
		return nil, err
	}

	base := external.NewBaseClient(httpClient, "notify", external.NoRetry(), userAgent,
		external.WithStatusPassthrough(), external.WithUpstreamCode(types.ErrCodeUpstreamNotify))
	return notify.NewClient(base, tokens, n.BatchURL), nil
}

// Sender builds the SendBatch job.
func (a *App) Sender() (*notify.Sender, error) {
	client, err := a.NotifyClient()
	if err != nil {
		return nil, err
	}
	validator, err := notify.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return notify.NewSender(notify.SenderConfig{
		UnitOfWork:      notifyUnitOfWork{tx: a.transactor()},
		Dispatcher:      client,
		RetryQueue:      a.RetryQueue(),
		Validator:       validator,
		Env:             a.Config.NotificationsEnv,
		WorkingDaysOnly: a.Config.Notify.WorkingDaysOnly,
		StaleAfter:      a.Config.Notify.StaleAfter,
		Logger:          a.Logger,
	}), nil
}

// RetryWorker builds the RetryBatch job.
func (a *App) RetryWorker() (*notify.RetryWorker, error) {
	sender, err := a.Sender()
	if err != nil {
		return nil, err
	}
	return notify.NewRetryWorker(notify.RetryConfig{
		Sender:    sender,
		Queue:     a.RetryQueue(),
		Limit:     a.Config.Notify.RetryLimit,
		DelayBase: time.Duration(a.Config.Notify.RetryDelayBase) * time.Second,
		Logger:    a.Logger,
	}), nil
}

// Persistor builds the SaveMessageStatus job.
func (a *App) Persistor() *status.Persistor {
	return status.NewPersistor(status.PersistorConfig{
		Queue:       a.StatusQueue(),
		Messages:    db.NewMessageRepository(a.Pool),
		Statuses:    db.NewStatusRepository(a.Pool),
		ReceiveSize: a.Config.Queue.StatusReceiveSize,
		Logger:      a.Logger,
	})
}

// WebhookHandler builds the status webhook.
func (a *App) WebhookHandler() *status.WebhookHandler {
	w := a.Config.Webhook
	return status.NewWebhookHandler(a.StatusQueue(), w.APIKey.Unmask(), w.Secret(), a.Logger)
}

// Reporter builds the CreateReports job. Mail is disabled unless SMTP is
// enabled.
func (a *App) Reporter() (*reports.Reporter, error) {
	cfg := reports.Config{
		Source:      db.NewReportRepository(a.Pool),
		Blobs:       a.ReportsStore(),
		BSOCodes:    a.Config.Reports.BSOCodes,
		Recipients:  a.Config.Reports.Recipients,
		Environment: a.Config.Environment,
		Logger:      a.Logger,
	}
	if s := a.Config.SMTP; s.Enabled {
		mailer, err := reports.NewSMTPMailer(reports.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password.Unmask(),
			From:     s.Sender(),
			Timeout:  s.Timeout,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Mailer = mailer
	}
	return reports.New(cfg), nil
}

// Collector builds the CollectMetrics job.
func (a *App) Collector() *metrics.Collector {
	return metrics.NewCollector(a.Metrics, []metrics.DepthSource{a.StatusQueue(), a.RetryQueue()}, a.Logger)
}

// QueueCheck reports q healthy when it answers a depth query.
func QueueCheck(name string, q *queue.Queue) core.HealthCheck {
	return core.HealthCheck{Name: name, Run: func(ctx context.Context) error {
		_, err := q.Depth(ctx)
		return err
	}}
}
