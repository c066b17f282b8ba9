package agent

import (
	"math/rand"
	"strings"
	"testing"
	"time"
)

func newSuspicion(t *testing.T) *SuspicionHandler {
	t.Helper()
	return NewSuspicionHandler(SuspicionConfig{
		Keywords:          []string{"are you a bot", "you're an ai"},
		Strategies:        []string{StrategySelfDeprecating, StrategyTechnicalBlame, StrategyDeflect},
		Cooldown:          45 * time.Second,
		EscalatedCooldown: 120 * time.Second,
		Grace:             20 * time.Second,
	}, rand.New(rand.NewSource(11)))
}

func TestInspect(t *testing.T) {
	h := newSuspicion(t)
	probe := Event{Kind: KindChat, Source: "P", Text: "wait ARE YOU A BOT??"}
	if got := h.Inspect(probe); got != VerdictProbe {
		t.Fatalf("inspect probe: got %q want %q", got, VerdictProbe)
	}
	if got := h.Inspect(Event{Kind: KindChat, Source: "P", Text: "nice bot... I mean boat"}); got != VerdictNone {
		t.Fatalf("inspect benign: got %q", got)
	}
	if got := h.Inspect(Event{Kind: KindDamage, Source: "P"}); got != VerdictNone {
		t.Fatalf("non-chat can not probe: got %q", got)
	}
}

func TestLevels_ProbeThenEscalate(t *testing.T) {
	h := newSuspicion(t)
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	if h.Level() != SuspicionNone {
		t.Fatalf("initial level: %q", h.Level())
	}
	h.RecordProbe(at)
	if h.Level() != SuspicionProbed {
		t.Fatalf("after first probe: %q", h.Level())
	}
	h.RecordProbe(at.Add(time.Second))
	if h.Level() != SuspicionEscalated {
		t.Fatalf("after second probe inside cooldown: %q", h.Level())
	}
}

func TestLevels_CooldownDecay(t *testing.T) {
	h := newSuspicion(t)
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	h.RecordProbe(at)
	h.Decay(at.Add(44 * time.Second))
	if h.Level() != SuspicionProbed {
		t.Fatalf("decayed too early: %q", h.Level())
	}
	h.Decay(at.Add(46 * time.Second))
	if h.Level() != SuspicionNone {
		t.Fatalf("probed should decay after cooldown: %q", h.Level())
	}

	h.RecordProbe(at)
	h.RecordProbe(at.Add(time.Second))
	h.Decay(at.Add(60 * time.Second))
	if h.Level() != SuspicionEscalated {
		t.Fatalf("escalated decays on the longer window only: %q", h.Level())
	}
	h.Decay(at.Add(125 * time.Second))
	if h.Level() != SuspicionNone {
		t.Fatalf("escalated should decay after long cooldown: %q", h.Level())
	}
}

func TestLevels_GraceSuccess(t *testing.T) {
	h := newSuspicion(t)
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	h.RecordProbe(at)
	h.SelectStrategy(at.Add(time.Second))
	h.ResponseIssued(at.Add(time.Second))

	h.Decay(at.Add(10 * time.Second))
	if h.Level() != SuspicionProbed {
		t.Fatalf("grace not over yet: %q", h.Level())
	}
	h.Decay(at.Add(22 * time.Second))
	if h.Level() != SuspicionNone {
		t.Fatalf("quiet grace period should clear suspicion: %q", h.Level())
	}
}

func TestLevels_ProbeVoidsGrace(t *testing.T) {
	h := newSuspicion(t)
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	h.RecordProbe(at)
	h.ResponseIssued(at.Add(time.Second))
	h.RecordProbe(at.Add(5 * time.Second)) // re-probed inside grace
	h.Decay(at.Add(25 * time.Second))
	if h.Level() != SuspicionEscalated {
		t.Fatalf("re-probe must void the success heuristic: %q", h.Level())
	}
}

func TestSelectStrategy_NoImmediateRepeat(t *testing.T) {
	h := newSuspicion(t)
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	prev := ""
	for i := 0; i < 50; i++ {
		s := h.SelectStrategy(at.Add(time.Duration(i) * time.Second))
		if s == prev {
			t.Fatalf("strategy repeated consecutively at pick %d: %q", i, s)
		}
		prev = s
	}
}

func TestSelectStrategy_TwoConfigured(t *testing.T) {
	h := NewSuspicionHandler(SuspicionConfig{
		Keywords:   []string{"are you a bot"},
		Strategies: []string{StrategyDeflect, StrategyTechnicalBlame},
		Cooldown:   45 * time.Second,
	}, rand.New(rand.NewSource(3)))
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	a := h.SelectStrategy(at)
	b := h.SelectStrategy(at.Add(time.Second))
	if a == b {
		t.Fatalf("two strategies must alternate: %q then %q", a, b)
	}
}

func TestResponseLine_NotADenial(t *testing.T) {
	h := newSuspicion(t)
	for _, s := range []string{StrategySelfDeprecating, StrategyTechnicalBlame, StrategyDeflect} {
		for i := 0; i < 10; i++ {
			line := strings.ToLower(h.ResponseLine(s))
			if strings.Contains(line, "i am not a bot") || strings.Contains(line, "i'm not a bot") {
				t.Fatalf("literal denial in %s bank: %q", s, line)
			}
			if line == "" {
				t.Fatalf("empty response line for %s", s)
			}
		}
	}
}
