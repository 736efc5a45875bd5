package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricQueueDepth = "QueueDepth"

	// Dimension Keys
	DimQueue       = "Queue"
	DimEnvironment = "Environment"
)

// Job names. They double as the prefix of the Completed/Error events.
const (
	JobFetchFeed          = "FetchFeed"
	JobIngestAppointments = "IngestAppointments"
	JobSendBatch          = "SendBatch"
	JobRetryBatch         = "RetryBatch"
	JobSaveMessageStatus  = "SaveMessageStatus"
	JobCreateReports      = "CreateReports"
	JobCollectMetrics     = "CollectMetrics"
)
