package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/seanhlewis/mcagentgym/internal/inference"
)

// Persona is the fixed identity an orchestrator plays. Loaded once at
// startup, never mutated afterwards.
type Persona struct {
	Name         string
	Traits       []string
	SpeechStyle  string
	MemoryWindow int
}

type ChatLine struct {
	Source string
	Text   string
	At     time.Time
}

// ContextManager keeps one agent's short-term memory: the last K chat lines,
// the latest visual snapshot, and the current objective. It is the single
// writer of this state; everything here is rebuilt incrementally.
type ContextManager struct {
	k      int
	budget int

	lines  []ChatLine
	visual Visual

	objectiveID  string
	objective    string
	lastOutcome  string
	lastInteract time.Time
}

func NewContextManager(k, budget int) *ContextManager {
	if k <= 0 {
		k = 10
	}
	if budget <= 0 {
		budget = 4000
	}
	return &ContextManager{k: k, budget: budget}
}

// Update folds one event into the context. Chat lines enter the K-window
// (oldest evicted first); proximity refreshes the last-interaction clock.
func (c *ContextManager) Update(ev Event) {
	switch ev.Kind {
	case KindChat:
		line := ChatLine{Source: ev.Source, Text: ev.Text, At: ev.At}
		if ev.Channel == "GLOBAL" {
			line.Text = "[global] " + line.Text
		}
		c.lines = append(c.lines, line)
		for len(c.lines) > c.k {
			c.lines = c.lines[1:]
		}
		c.lastInteract = ev.At
	case KindProximity:
		c.lastInteract = ev.At
	}
}

func (c *ContextManager) SetVisual(v Visual) {
	c.visual = v
}

// SetObjective records the current task plus the previous step's outcome.
// Outcomes are clamped so a noisy failure detail cannot flood the prompt.
func (c *ContextManager) SetObjective(id, desc, lastOutcome string) {
	const outcomeMax = 400
	if len(lastOutcome) > outcomeMax {
		lastOutcome = lastOutcome[:outcomeMax] + "..."
	}
	c.objectiveID = id
	c.objective = desc
	c.lastOutcome = lastOutcome
}

func (c *ContextManager) Lines() []ChatLine {
	out := make([]ChatLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// LastLine returns the newest chat line, if any.
func (c *ContextManager) LastLine() (ChatLine, bool) {
	if len(c.lines) == 0 {
		return ChatLine{}, false
	}
	return c.lines[len(c.lines)-1], true
}

func (c *ContextManager) LastInteraction() time.Time {
	return c.lastInteract
}

// BuildPrompt assembles the payload for one inference call. Pure: identical
// context, persona, suspicion level, and trigger always produce an identical
// payload. The persona block and trigger are never truncated; memory is
// dropped oldest-first to fit the budget, then the context tail is clipped.
func (c *ContextManager) BuildPrompt(p Persona, suspicionLevel, trigger string) inference.PromptPayload {
	system := personaBlock(p)

	lines := c.lines
	for {
		ctx := c.contextBlock(lines, suspicionLevel)
		total := len(system) + len(ctx) + len(trigger)
		if total <= c.budget || len(lines) == 0 {
			if total > c.budget {
				keep := c.budget - len(system) - len(trigger)
				if keep < 0 {
					keep = 0
				}
				if keep < len(ctx) {
					ctx = ctx[:keep]
				}
			}
			return inference.PromptPayload{
				AgentID: p.Name,
				System:  system,
				Context: ctx,
				Trigger: trigger,
			}
		}
		lines = lines[1:]
	}
}

func personaBlock(p Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a regular player on this server.", p.Name)
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, " Traits: %s.", strings.Join(p.Traits, ", "))
	}
	if p.SpeechStyle != "" {
		fmt.Fprintf(&b, " Speech style: %s.", p.SpeechStyle)
	}
	b.WriteString(" Stay in character at all times.")
	b.WriteString(` Respond ONLY with JSON of the form {"decision":{"kind":"speak|act|idle",...}}; speak needs "text", act needs "skill" and "params".`)
	return b.String()
}

func (c *ContextManager) contextBlock(lines []ChatLine, suspicionLevel string) string {
	var b strings.Builder

	if c.objective != "" {
		fmt.Fprintf(&b, "Current task (%s): %s\n", c.objectiveID, c.objective)
		if c.lastOutcome != "" {
			fmt.Fprintf(&b, "Last step: %s\n", c.lastOutcome)
		} else {
			b.WriteString("No previous step; this is your first action.\n")
		}
	}

	if len(c.visual.Nearby) > 0 || len(c.visual.Held) > 0 {
		b.WriteString("You see:")
		for _, e := range c.visual.Nearby {
			name := e.Name
			if name == "" {
				name = e.ID
			}
			fmt.Fprintf(&b, " %s(%s,%dm)", name, strings.ToLower(e.Type), e.Dist)
		}
		if len(c.visual.Held) > 0 {
			fmt.Fprintf(&b, "; holding: %s", strings.Join(c.visual.Held, ", "))
		}
		b.WriteString("\n")
	}

	if len(lines) > 0 {
		b.WriteString("Recent chat:\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "%s: %s\n", l.Source, l.Text)
		}
	}

	switch suspicionLevel {
	case SuspicionProbed:
		b.WriteString("Someone is questioning whether you are human. Brush it off casually; never admit anything, never sound rehearsed.\n")
	case SuspicionEscalated:
		b.WriteString("You are being pressed about being a bot. Change the subject or get mildly annoyed like a real player would; never admit anything.\n")
	}

	return b.String()
}
