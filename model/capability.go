// Package model provides capability-based model selection for the
// assistant's oracle calls. Callers specify capabilities (fast,
// reasoning, synthesis) instead of model names, and the registry
// resolves them to available endpoints with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "gemini-2.0-flash", callers specify "fast"
// or "reasoning".
type Capability string

const (
	// CapabilityFast is for low-latency classification: turn routing,
	// quick yes/no screens.
	CapabilityFast Capability = "fast"

	// CapabilityReasoning is for plan creation, option generation,
	// and conflict analysis.
	CapabilityReasoning Capability = "reasoning"

	// CapabilitySynthesis is for long-form report composition and
	// follow-up answering.
	CapabilitySynthesis Capability = "synthesis"
)

// RoleCapabilities maps assistant roles to their default capability.
// Used when a collaborator does not specify a capability explicitly.
var RoleCapabilities = map[string]Capability{
	"router":      CapabilityFast,
	"clarifier":   CapabilityFast,
	"validator":   CapabilityFast,
	"planner":     CapabilityReasoning,
	"options":     CapabilityReasoning,
	"retriever":   CapabilityReasoning,
	"synthesizer": CapabilitySynthesis,
}

// CapabilityForRole returns the default capability for a role.
// Unknown roles fall back to CapabilityReasoning.
func CapabilityForRole(role string) Capability {
	if cap, ok := RoleCapabilities[role]; ok {
		return cap
	}
	return CapabilityReasoning
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityFast, CapabilityReasoning, CapabilitySynthesis:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty
// for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
