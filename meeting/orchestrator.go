package meeting

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/logging"
	"github.com/hupe1980/crmflow/mention"
)

// DefaultContextWindow bounds how many transcript entries are replayed into
// each agent's prompt.
const DefaultContextWindow = 10

// StatusFunc observes participant status transitions during a turn.
type StatusFunc func(agentID string, status core.ParticipantStatus)

// Options configures an Orchestrator.
type Options struct {
	// ContextWindow is the number of trailing transcript entries included
	// in agent prompts. Defaults to DefaultContextWindow when <= 0.
	ContextWindow int

	// DefaultTargetID is the participant preferred when no mention
	// resolves to an active participant. Defaults to "ceo".
	DefaultTargetID string

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Orchestrator sequences chat agents through a shared meeting transcript.
// Agents within one turn run strictly sequentially, never in parallel, so
// each agent's prompt can include what prior agents in the same turn already
// said. The transcript is owned by the orchestrator and mutated only by its
// own sequential logic.
type Orchestrator struct {
	mu            sync.RWMutex
	roster        []core.Participant
	agents        map[string]core.AgentChat
	transcript    []core.MeetingMessage
	contextWindow int
	defaultTarget string
	logger        logging.Logger
}

// New constructs an orchestrator for a fixed roster. The roster's order is
// the canonical agent order used for mention resolution; agents maps
// participant IDs to their chat implementations.
func New(roster []core.Participant, agents map[string]core.AgentChat, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		ContextWindow:   DefaultContextWindow,
		DefaultTargetID: "ceo",
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	rosterCopy := make([]core.Participant, len(roster))
	copy(rosterCopy, roster)
	for i := range rosterCopy {
		if rosterCopy[i].Status == "" {
			rosterCopy[i].Status = core.StatusIdle
		}
	}

	return &Orchestrator{
		roster:        rosterCopy,
		agents:        agents,
		contextWindow: opts.ContextWindow,
		defaultTarget: opts.DefaultTargetID,
		logger:        opts.Logger,
	}
}

// Roster returns a copy of the current roster including statuses.
func (o *Orchestrator) Roster() []core.Participant {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]core.Participant, len(o.roster))
	copy(out, o.roster)
	return out
}

// ResolveTargets determines which agents must respond to a message.
//
// Mentions are parsed against the full roster, then intersected with the
// participants actually present in this meeting. When no mention is found,
// or every mentioned agent was filtered out by the intersection, the result
// falls back to a single default target: the preferred default role if
// active, else the first active participant in its given order. The second
// return value reports whether the targets came from explicit mentions.
func (o *Orchestrator) ResolveTargets(message string, activeIDs []string) ([]string, bool) {
	o.mu.RLock()
	roster := o.roster
	o.mu.RUnlock()

	active := map[string]bool{}
	for _, id := range activeIDs {
		active[id] = true
	}

	if parsed := mention.Parse(message, roster); parsed != nil {
		targets := make([]string, 0, len(parsed))
		for _, id := range parsed {
			if active[id] {
				targets = append(targets, id)
			}
		}
		if len(targets) > 0 {
			return targets, true
		}
	}

	if active[o.defaultTarget] {
		return []string{o.defaultTarget}, false
	}
	if len(activeIDs) > 0 {
		return []string{activeIDs[0]}, false
	}
	return nil, false
}

// AskAgents runs one meeting turn: the user message is appended to the
// transcript immediately, then each agent in agentIDs responds strictly in
// order. The returned channel is a lazy, single-pass sequence closed after
// the last agent; it is not restartable.
//
// A failing agent yields a synthesized error message in its place and the
// sequence continues. Cancelling ctx stops delivery, but an agent call that
// was already dispatched still completes and its message is still appended
// to the transcript.
func (o *Orchestrator) AskAgents(ctx context.Context, userMessage string, agentIDs []string, onStatus StatusFunc) <-chan core.MeetingMessage {
	o.appendMessage(core.NewMeetingMessage(core.RoleUser, "", "", userMessage))

	out := make(chan core.MeetingMessage)
	go func() {
		defer close(out)
		for _, agentID := range agentIDs {
			msg := o.runTurn(ctx, agentID, userMessage, onStatus)
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// AskAgentsSync drains AskAgents into a slice. Convenience for callers that
// do not need incremental delivery.
func (o *Orchestrator) AskAgentsSync(ctx context.Context, userMessage string, agentIDs []string, onStatus StatusFunc) []core.MeetingMessage {
	var out []core.MeetingMessage
	for msg := range o.AskAgents(ctx, userMessage, agentIDs, onStatus) {
		out = append(out, msg)
	}
	return out
}

// runTurn executes the Idle → Thinking → Speaking → Idle cycle for one agent
// and returns the transcript entry it produced.
func (o *Orchestrator) runTurn(ctx context.Context, agentID, userMessage string, onStatus StatusFunc) core.MeetingMessage {
	p := o.participant(agentID)
	name := agentID
	if p != nil {
		name = p.Name
	}

	o.setStatus(agentID, core.StatusThinking, onStatus)

	var content string
	agent, ok := o.agents[agentID]
	if !ok {
		o.logger.Warn("meeting agent not registered", "agent_id", agentID)
		content = fmt.Sprintf("%s is not available in this meeting.", name)
	} else {
		prompt := o.buildPrompt(agentID, userMessage)
		reply, err := agent.Chat(ctx, prompt)
		if err != nil {
			o.logger.Error("meeting agent call failed", "agent_id", agentID, "error", err.Error())
			content = fmt.Sprintf("%s could not respond: %s", name, err.Error())
		} else {
			content = reply
		}
	}

	msg := core.NewMeetingMessage(core.RoleAgent, agentID, name, content)
	o.setStatus(agentID, core.StatusSpeaking, onStatus)
	o.appendMessage(msg)
	o.setStatus(agentID, core.StatusIdle, onStatus)
	return msg
}

// buildPrompt embeds the trailing transcript window and the user's message
// into a role-addressed prompt.
func (o *Orchestrator) buildPrompt(agentID, userMessage string) string {
	p := o.participant(agentID)
	name, title := agentID, ""
	if p != nil {
		name, title = p.Name, p.Title
	}

	var b strings.Builder
	if window := o.contextWindowEntries(); len(window) > 0 {
		b.WriteString("Recent discussion:\n")
		for _, m := range window {
			author := "User"
			if m.Role == core.RoleAgent {
				author = m.AgentName
			}
			fmt.Fprintf(&b, "%s: %s\n", author, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "The user just said: %s\n\n", userMessage)
	if title != "" {
		fmt.Fprintf(&b, "Respond as %s, %s.", name, title)
	} else {
		fmt.Fprintf(&b, "Respond as %s.", name)
	}
	return b.String()
}

// contextWindowEntries returns the last K transcript entries.
func (o *Orchestrator) contextWindowEntries() []core.MeetingMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	start := len(o.transcript) - o.contextWindow
	if start < 0 {
		start = 0
	}
	out := make([]core.MeetingMessage, len(o.transcript)-start)
	copy(out, o.transcript[start:])
	return out
}

// Transcript returns a defensive copy of the full transcript.
func (o *Orchestrator) Transcript() []core.MeetingMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]core.MeetingMessage, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// ClearTranscript discards the meeting's memory of what was said.
func (o *Orchestrator) ClearTranscript() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcript = nil
}

func (o *Orchestrator) appendMessage(msg core.MeetingMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcript = append(o.transcript, msg)
}

func (o *Orchestrator) participant(agentID string) *core.Participant {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i := range o.roster {
		if o.roster[i].ID == agentID {
			p := o.roster[i]
			return &p
		}
	}
	return nil
}

func (o *Orchestrator) setStatus(agentID string, status core.ParticipantStatus, onStatus StatusFunc) {
	o.mu.Lock()
	for i := range o.roster {
		if o.roster[i].ID == agentID {
			o.roster[i].Status = status
			break
		}
	}
	o.mu.Unlock()
	if onStatus != nil {
		onStatus(agentID, status)
	}
}
