// Package notify builds message batches for upcoming appointments, submits
// them to the notify API and applies the outcome to batch and message
// state. Recoverable failures are carried forward on the retry queue and
// picked up by RetryWorker.
package notify

import "screeningcomms/internal/types"

// RoutingPlan selects an upstream template and channel cascade for a group
// of episode types.
type RoutingPlan struct {
	ID           string
	EpisodeTypes []types.EpisodeType
}

var firstCallTypes = []types.EpisodeType{
	types.EpisodeRoutineFirstCall,
	types.EpisodeGPReferral,
	types.EpisodeSelfReferral,
}

var recallTypes = []types.EpisodeType{types.EpisodeRoutineRecall}

// The notify API has an integration and a production configuration, so two
// plan tables cover every deployment.
var routingPlans = map[string][]RoutingPlan{
	"dev": {
		{ID: "b838b13c-f98c-4def-93f0-515d4e4f4ee1", EpisodeTypes: firstCallTypes},
		{ID: "b838b13c-f98c-4def-93f0-515d4e4f4ee1", EpisodeTypes: recallTypes},
	},
	"prod": {
		{ID: "e82809da-0e58-4915-9774-cc781332d893", EpisodeTypes: firstCallTypes},
		{ID: "c578e0a3-fed4-4faf-981b-ebdef16012f0", EpisodeTypes: recallTypes},
	},
}

// RoutingPlans returns the plan table for env. Unknown environments use
// the dev table.
func RoutingPlans(env string) []RoutingPlan {
	if plans, ok := routingPlans[env]; ok {
		return plans
	}
	return routingPlans["dev"]
}

// PlanForEpisodeType returns the plan covering episodeType, if any.
func PlanForEpisodeType(env string, episodeType types.EpisodeType) (RoutingPlan, bool) {
	for _, p := range RoutingPlans(env) {
		for _, et := range p.EpisodeTypes {
			if et == episodeType {
				return p, true
			}
		}
	}
	return RoutingPlan{}, false
}
