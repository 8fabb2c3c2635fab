package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/logging"
	"github.com/hupe1980/crmflow/model"
)

// Config describes one persona. Tenant customization is applied through the
// Org field at construction time; a Persona never reads shared mutable
// process state, so concurrent tenant sessions stay isolated.
type Config struct {
	// ID is the stable persona identifier ("ceo", "sales", ...).
	ID string

	// Name and Title are the display identity; tenant overrides win.
	Name  string
	Title string

	// Instructions describe the persona's role and expertise.
	Instructions string

	// Tone optionally adjusts the speaking style.
	Tone string

	// Org is the tenant configuration embedded into the system prompt.
	Org core.OrgConfig

	// Model produces responses. When nil the persona answers from a
	// deterministic template so the library works without an API key.
	Model model.Model

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Persona is a chat-capable agent identity implementing core.AgentChat.
// It is stateless between calls; conversational context is embedded into the
// message by the caller (the meeting orchestrator or the workflow engine).
type Persona struct {
	cfg    Config
	logger logging.Logger
}

var _ core.AgentChat = (*Persona)(nil)

// New constructs a persona, applying any tenant override registered for its
// ID in the org configuration.
func New(cfg Config) *Persona {
	if o, ok := cfg.Org.Override(cfg.ID); ok {
		if o.Name != "" {
			cfg.Name = o.Name
		}
		if o.Title != "" {
			cfg.Title = o.Title
		}
		if o.Tone != "" {
			cfg.Tone = o.Tone
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Persona{cfg: cfg, logger: cfg.Logger}
}

// ID returns the persona identifier.
func (p *Persona) ID() string { return p.cfg.ID }

// Name returns the (possibly tenant-overridden) display name.
func (p *Persona) Name() string { return p.cfg.Name }

// Title returns the persona's title.
func (p *Persona) Title() string { return p.cfg.Title }

// Participant returns the meeting roster entry for this persona.
func (p *Persona) Participant() core.Participant {
	return core.Participant{ID: p.cfg.ID, Name: p.cfg.Name, Title: p.cfg.Title, Status: core.StatusIdle}
}

// Chat implements core.AgentChat. Model failures are returned to the caller,
// which converts them into recorded error data.
func (p *Persona) Chat(ctx context.Context, message string) (string, error) {
	if p.cfg.Model == nil {
		return p.fallback(message), nil
	}

	start := time.Now()
	resp, err := p.cfg.Model.Complete(ctx, model.Request{
		Instructions: p.instructions(),
		Messages:     []model.Message{{Role: "user", Text: message}},
	})
	if err != nil {
		p.logger.Error("persona chat failed", "agent_id", p.cfg.ID, "duration", time.Since(start).String(), "error", err.Error())
		return "", fmt.Errorf("agent %s: %w", p.cfg.ID, err)
	}

	p.logger.Debug("persona chat completed", "agent_id", p.cfg.ID, "duration", time.Since(start).String())
	return resp.Text, nil
}

// instructions builds the system prompt from role and org configuration.
func (p *Persona) instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s", p.cfg.Name, p.cfg.Title)
	if p.cfg.Org.Name != "" {
		fmt.Fprintf(&b, " at %s", p.cfg.Org.Name)
	}
	b.WriteString(".")
	if p.cfg.Org.Industry != "" {
		fmt.Fprintf(&b, " The company operates in the %s industry.", p.cfg.Org.Industry)
	}
	if p.cfg.Instructions != "" {
		b.WriteString(" ")
		b.WriteString(p.cfg.Instructions)
	}
	if p.cfg.Tone != "" {
		fmt.Fprintf(&b, " Respond in a %s tone.", p.cfg.Tone)
	}
	b.WriteString(" Keep answers concise and actionable.")
	return b.String()
}

// fallback produces a deterministic template response when no model is
// configured.
func (p *Persona) fallback(message string) string {
	return fmt.Sprintf("[%s] As %s I have noted your request: %q. Connect a model for a full response.",
		p.cfg.Name, p.cfg.Title, truncate(message, 140))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DefaultTeam builds the standard four-persona roster (ceo, sales,
// marketing, it) for the given tenant, all sharing one model.
func DefaultTeam(org core.OrgConfig, m model.Model, logger logging.Logger) []*Persona {
	defaults := []Config{
		{ID: "ceo", Name: "Morgan", Title: "Chief Executive Officer",
			Instructions: "You set strategy, arbitrate between departments and make final calls."},
		{ID: "sales", Name: "Riley", Title: "Head of Sales",
			Instructions: "You own the pipeline, deals and revenue forecasts."},
		{ID: "marketing", Name: "Jordan", Title: "Head of Marketing",
			Instructions: "You own campaigns, positioning and lead generation."},
		{ID: "it", Name: "Sam", Title: "Head of IT",
			Instructions: "You own systems, integrations and data quality."},
	}

	team := make([]*Persona, 0, len(defaults))
	for _, cfg := range defaults {
		cfg.Org = org
		cfg.Model = m
		cfg.Logger = logger
		team = append(team, New(cfg))
	}
	return team
}

// Roster converts personas to meeting participants preserving order. The
// order of the returned slice is the canonical agent order used by mention
// routing.
func Roster(team []*Persona) []core.Participant {
	roster := make([]core.Participant, 0, len(team))
	for _, p := range team {
		roster = append(roster, p.Participant())
	}
	return roster
}
