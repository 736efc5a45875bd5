package types

import "fmt"

// AppointmentStatus is the booking state of an Appointment.
type AppointmentStatus string

const (
	AppointmentBooked       AppointmentStatus = "booked"
	AppointmentCancelled    AppointmentStatus = "cancelled"
	AppointmentAttended     AppointmentStatus = "attended"
	AppointmentDidNotAttend AppointmentStatus = "did_not_attend"
	AppointmentUpdated      AppointmentStatus = "updated"
)

var appointmentStatusByCode = map[string]AppointmentStatus{
	"B": AppointmentBooked,
	"C": AppointmentCancelled,
	"A": AppointmentAttended,
	"D": AppointmentDidNotAttend,
	"U": AppointmentUpdated,
}

// ParseAppointmentStatusCode maps the one-letter feed code to a status.
func ParseAppointmentStatusCode(code string) (AppointmentStatus, error) {
	s, ok := appointmentStatusByCode[code]
	if !ok {
		return "", NewAppError(ErrCodeInternalUnknownEnum,
			fmt.Sprintf("unknown appointment status code %q", code), nil)
	}
	return s, nil
}

// IsCompletion reports whether the status closes the appointment after it took place.
func (s AppointmentStatus) IsCompletion() bool {
	return s == AppointmentAttended || s == AppointmentDidNotAttend
}

// EpisodeType is the kind of screening episode an appointment belongs to.
type EpisodeType string

const (
	EpisodeRoutineFirstCall   EpisodeType = "routine_first_call"
	EpisodeRoutineRecall      EpisodeType = "routine_recall"
	EpisodeGPReferral         EpisodeType = "gp_referral"
	EpisodeSelfReferral       EpisodeType = "self_referral"
	EpisodeEarlyRecall        EpisodeType = "early_recall"
	EpisodeVeryHighRisk       EpisodeType = "very_high_risk"
	EpisodeVHRShortTermRecall EpisodeType = "vhr_short_term_recall"
)

var episodeTypeByCode = map[string]EpisodeType{
	"F": EpisodeRoutineFirstCall,
	"R": EpisodeRoutineRecall,
	"G": EpisodeGPReferral,
	"S": EpisodeSelfReferral,
	"N": EpisodeEarlyRecall,
	"H": EpisodeVeryHighRisk,
	"T": EpisodeVHRShortTermRecall,
}

// ParseEpisodeTypeCode maps the one-letter feed code to an episode type.
func ParseEpisodeTypeCode(code string) (EpisodeType, error) {
	e, ok := episodeTypeByCode[code]
	if !ok {
		return "", NewAppError(ErrCodeInternalUnknownEnum,
			fmt.Sprintf("unknown episode type code %q", code), nil)
	}
	return e, nil
}

// BatchStatus is the lifecycle state of a MessageBatch.
type BatchStatus string

const (
	BatchUnscheduled         BatchStatus = "unscheduled"
	BatchScheduled           BatchStatus = "scheduled"
	BatchSent                BatchStatus = "sent"
	BatchFailedRecoverable   BatchStatus = "failed_recoverable"
	BatchFailedUnrecoverable BatchStatus = "failed_unrecoverable"
)

// IsTerminal reports whether the batch can no longer be submitted.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchSent || s == BatchFailedUnrecoverable
}

// MessageStatus is the lifecycle state of a Message, and the overall status
// reported by the notify API for it.
type MessageStatus string

const (
	MessagePendingEnrichment MessageStatus = "pending_enrichment"
	MessageEnriched          MessageStatus = "enriched"
	MessageSending           MessageStatus = "sending"
	MessageDelivered         MessageStatus = "delivered"
	MessageFailed            MessageStatus = "failed"
)

// ParseMessageStatus validates a status string received from the notify API.
func ParseMessageStatus(s string) (MessageStatus, error) {
	switch MessageStatus(s) {
	case MessagePendingEnrichment, MessageEnriched, MessageSending, MessageDelivered, MessageFailed:
		return MessageStatus(s), nil
	}
	return "", NewAppError(ErrCodeInternalUnknownEnum, fmt.Sprintf("unknown message status %q", s), nil)
}

// Channel is a delivery channel of the notify API.
type Channel string

const (
	ChannelNHSApp Channel = "nhsapp"
	ChannelSMS    Channel = "sms"
	ChannelLetter Channel = "letter"
	ChannelEmail  Channel = "email"
)

// ParseChannel validates a channel name received from the notify API.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelNHSApp, ChannelSMS, ChannelLetter, ChannelEmail:
		return Channel(s), nil
	}
	return "", NewAppError(ErrCodeInternalUnknownEnum, fmt.Sprintf("unknown channel %q", s), nil)
}

// ChannelStatus is the supplier status reported for a single channel.
type ChannelStatus string

const (
	ChannelAccepted              ChannelStatus = "accepted"
	ChannelCancelled             ChannelStatus = "cancelled"
	ChannelDelivered             ChannelStatus = "delivered"
	ChannelNotificationAttempted ChannelStatus = "notification_attempted"
	ChannelNotified              ChannelStatus = "notified"
	ChannelPendingVirusCheck     ChannelStatus = "pending_virus_check"
	ChannelRead                  ChannelStatus = "read"
	ChannelReceived              ChannelStatus = "received"
	ChannelRejected              ChannelStatus = "rejected"
	ChannelPermanentFailure      ChannelStatus = "permanent_failure"
	ChannelTechnicalFailure      ChannelStatus = "technical_failure"
	ChannelTemporaryFailure      ChannelStatus = "temporary_failure"
	ChannelUnknown               ChannelStatus = "unknown"
	ChannelUnnotified            ChannelStatus = "unnotified"
	ChannelValidationFailed      ChannelStatus = "validation_failed"
)

var channelStatuses = map[ChannelStatus]struct{}{
	ChannelAccepted: {}, ChannelCancelled: {}, ChannelDelivered: {},
	ChannelNotificationAttempted: {}, ChannelNotified: {}, ChannelPendingVirusCheck: {},
	ChannelRead: {}, ChannelReceived: {}, ChannelRejected: {},
	ChannelPermanentFailure: {}, ChannelTechnicalFailure: {}, ChannelTemporaryFailure: {},
	ChannelUnknown: {}, ChannelUnnotified: {}, ChannelValidationFailed: {},
}

// ParseChannelStatus validates a supplier status received from the notify API.
func ParseChannelStatus(s string) (ChannelStatus, error) {
	if _, ok := channelStatuses[ChannelStatus(s)]; ok {
		return ChannelStatus(s), nil
	}
	return "", NewAppError(ErrCodeInternalUnknownEnum, fmt.Sprintf("unknown channel status %q", s), nil)
}
