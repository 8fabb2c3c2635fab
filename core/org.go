package core

// AgentOverride customizes a single persona for one tenant (display name,
// title and tone). Zero-valued fields keep the persona defaults.
type AgentOverride struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Tone  string `json:"tone,omitempty"`
}

// OrgConfig carries the tenant-specific configuration handed to persona and
// orchestrator constructors. Each tenant session must receive its own
// instance; the configuration is never shared mutable process state, so
// concurrent sessions cannot leak customization across tenants.
type OrgConfig struct {
	// Name is the organization name embedded into persona instructions.
	Name string `json:"name"`

	// Industry optionally refines persona instructions.
	Industry string `json:"industry,omitempty"`

	// Overrides maps persona IDs to tenant customization.
	Overrides map[string]AgentOverride `json:"overrides,omitempty"`
}

// Override returns the customization for a persona ID, if any.
func (c OrgConfig) Override(id string) (AgentOverride, bool) {
	o, ok := c.Overrides[id]
	return o, ok
}
