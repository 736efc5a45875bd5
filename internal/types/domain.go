package types

import "time"

// Clinic is a physical screening location, unique on (BSOCode, Code).
type Clinic struct {
	ID                  string    `json:"id" db:"id"`
	Code                string    `json:"code" db:"code"`
	BSOCode             string    `json:"bso_code" db:"bso_code"`
	Name                string    `json:"name" db:"name"`
	AltName             string    `json:"alt_name" db:"alt_name"`
	HoldingClinic       bool      `json:"holding_clinic" db:"holding_clinic"`
	LocationCode        string    `json:"location_code" db:"location_code"`
	AddressLine1        string    `json:"address_line_1" db:"address_line_1"`
	AddressLine2        string    `json:"address_line_2" db:"address_line_2"`
	AddressLine3        string    `json:"address_line_3" db:"address_line_3"`
	AddressLine4        string    `json:"address_line_4" db:"address_line_4"`
	AddressLine5        string    `json:"address_line_5" db:"address_line_5"`
	Postcode            string    `json:"postcode" db:"postcode"`
	LocationDescription string    `json:"location_description" db:"location_description"`
	LocationURL         string    `json:"location_url" db:"location_url"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// AddressLines returns the five address lines in order.
func (c Clinic) AddressLines() []string {
	return []string{c.AddressLine1, c.AddressLine2, c.AddressLine3, c.AddressLine4, c.AddressLine5}
}

// Appointment is one booking for one participant at one clinic.
type Appointment struct {
	ID                  string            `json:"id" db:"id"`
	ClinicID            string            `json:"clinic_id" db:"clinic_id"`
	NBSSID              string            `json:"nbss_id" db:"nbss_id"`
	NHSNumber           string            `json:"nhs_number" db:"nhs_number"`
	BatchID             string            `json:"batch_id" db:"batch_id"`
	Number              int               `json:"number" db:"number"`
	Status              AppointmentStatus `json:"status" db:"status"`
	EpisodeType         EpisodeType       `json:"episode_type" db:"episode_type"`
	EpisodeStartedAt    *time.Time        `json:"episode_started_at,omitempty" db:"episode_started_at"`
	StartsAt            time.Time         `json:"starts_at" db:"starts_at"`
	BookedBy            string            `json:"booked_by" db:"booked_by"`
	BookedAt            *time.Time        `json:"booked_at,omitempty" db:"booked_at"`
	CancelledBy         string            `json:"cancelled_by" db:"cancelled_by"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedBy         string            `json:"completed_by" db:"completed_by"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	AttendedNotScreened string            `json:"attended_not_screened" db:"attended_not_screened"`
	Assessment          bool              `json:"assessment" db:"assessment"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`

	// Hydrated by queries that join the clinic.
	Clinic *Clinic `json:"clinic,omitempty" db:"-"`
}

// MessageBatch is one homogeneous submission to the notify API.
type MessageBatch struct {
	ID              string       `json:"id" db:"id"`
	RoutingPlanID   string       `json:"routing_plan_id" db:"routing_plan_id"`
	Status          BatchStatus  `json:"status" db:"status"`
	NotifyID        string       `json:"notify_id" db:"notify_id"`
	ScheduledAt     *time.Time   `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt          *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
	NHSNotifyErrors NotifyErrors `json:"nhs_notify_errors,omitempty" db:"nhs_notify_errors"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// Message is a single notification intent for one appointment.
// BatchID is empty when the message has been detached from its batch.
type Message struct {
	ID              string        `json:"id" db:"id"`
	BatchID         string        `json:"batch_id,omitempty" db:"batch_id"`
	AppointmentID   string        `json:"appointment_id" db:"appointment_id"`
	Status          MessageStatus `json:"status" db:"status"`
	NotifyID        string        `json:"notify_id" db:"notify_id"`
	SentAt          *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	NHSNotifyErrors NotifyErrors  `json:"nhs_notify_errors,omitempty" db:"nhs_notify_errors"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`

	// Hydrated when presenting a batch.
	Appointment *Appointment `json:"appointment,omitempty" db:"-"`
}

// MessageStatusEvent records the overall disposition of a Message.
type MessageStatusEvent struct {
	ID              string        `json:"id" db:"id"`
	MessageID       string        `json:"message_id" db:"message_id"`
	Status          MessageStatus `json:"status" db:"status"`
	Description     string        `json:"description" db:"description"`
	IdempotencyKey  string        `json:"idempotency_key" db:"idempotency_key"`
	StatusUpdatedAt time.Time     `json:"status_updated_at" db:"status_updated_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// ChannelStatusEvent records the disposition of a Message on one channel.
type ChannelStatusEvent struct {
	ID              string        `json:"id" db:"id"`
	MessageID       string        `json:"message_id" db:"message_id"`
	Channel         Channel       `json:"channel" db:"channel"`
	Status          ChannelStatus `json:"status" db:"status"`
	Description     string        `json:"description" db:"description"`
	IdempotencyKey  string        `json:"idempotency_key" db:"idempotency_key"`
	StatusUpdatedAt time.Time     `json:"status_updated_at" db:"status_updated_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// RetryToken is the payload carried by the retry queue.
type RetryToken struct {
	MessageBatchID string `json:"message_batch_id"`
	RetryCount     int    `json:"retry_count"`
}
