package models

// SpecialistDescriptor is the static identity the orchestrator routes on.
// Names are unique within one orchestrator's roster.
type SpecialistDescriptor struct {
	// Name is matched exactly against the agentName of a SpecializedAgent action.
	Name string `json:"name"`
	// Role is a one-line description shown to the planning model.
	Role string `json:"role"`
}
