package reports

import "screeningcomms/internal/types"

// Display labels for enumerations. Stored values are the lowercase
// serialisations; reports show these instead.
var (
	episodeTypeLabels = map[types.EpisodeType]string{
		types.EpisodeRoutineFirstCall:   "Routine first call",
		types.EpisodeRoutineRecall:      "Routine recall",
		types.EpisodeGPReferral:         "GP referral",
		types.EpisodeSelfReferral:       "Self referral",
		types.EpisodeEarlyRecall:        "Early recall",
		types.EpisodeVeryHighRisk:       "Very high risk",
		types.EpisodeVHRShortTermRecall: "VHR short term recall",
	}

	appointmentStatusLabels = map[types.AppointmentStatus]string{
		types.AppointmentBooked:       "Booked",
		types.AppointmentCancelled:    "Cancelled",
		types.AppointmentAttended:     "Attended",
		types.AppointmentDidNotAttend: "Did not attend",
		types.AppointmentUpdated:      "Updated",
	}

	messageStatusLabels = map[types.MessageStatus]string{
		types.MessagePendingEnrichment: "Pending enrichment",
		types.MessageEnriched:          "Enriched",
		types.MessageSending:           "Sending",
		types.MessageDelivered:         "Delivered",
		types.MessageFailed:            "Failed",
	}
)

func label[K ~string](labels map[K]string, v K) string {
	if l, ok := labels[v]; ok {
		return l
	}
	return string(v)
}
