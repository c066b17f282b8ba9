package agent

import (
	"math/rand"
	"strings"
	"time"
)

// Suspicion levels.
const (
	SuspicionNone      = "none"
	SuspicionProbed    = "probed"
	SuspicionEscalated = "escalated"
)

// Inspect verdicts.
const (
	VerdictNone  = "none"
	VerdictProbe = "probe"
)

// Defensive strategies. Responses redirect or excuse; they never deny
// outright, since a flat denial is itself a tell.
const (
	StrategySelfDeprecating = "self_deprecating"
	StrategyTechnicalBlame  = "technical_blame"
	StrategyDeflect         = "deflect"
)

type SuspicionConfig struct {
	Keywords          []string
	Strategies        []string
	Cooldown          time.Duration
	EscalatedCooldown time.Duration
	Grace             time.Duration
}

// SuspicionHandler watches chat for authenticity probes and picks how to
// answer them. Detection is a plain keyword match so it stays synchronous;
// no inference happens here.
type SuspicionHandler struct {
	keywords          []string
	strategies        []string
	cooldown          time.Duration
	escalatedCooldown time.Duration
	grace             time.Duration
	rng               *rand.Rand

	level        string
	lastProbeAt  time.Time
	respondedAt  time.Time
	lastStrategy string
	usedAt       map[string]time.Time
}

func NewSuspicionHandler(cfg SuspicionConfig, rng *rand.Rand) *SuspicionHandler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 45 * time.Second
	}
	if cfg.EscalatedCooldown <= cfg.Cooldown {
		cfg.EscalatedCooldown = 3 * cfg.Cooldown
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 20 * time.Second
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []string{StrategySelfDeprecating, StrategyTechnicalBlame, StrategyDeflect}
	}
	kw := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SuspicionHandler{
		keywords:          kw,
		strategies:        cfg.Strategies,
		cooldown:          cfg.Cooldown,
		escalatedCooldown: cfg.EscalatedCooldown,
		grace:             cfg.Grace,
		rng:               rng,
		level:             SuspicionNone,
		usedAt:            map[string]time.Time{},
	}
}

// Inspect classifies a single event. Only chat text can probe.
func (h *SuspicionHandler) Inspect(ev Event) string {
	if ev.Kind != KindChat {
		return VerdictNone
	}
	text := strings.ToLower(ev.Text)
	for _, k := range h.keywords {
		if strings.Contains(text, k) {
			return VerdictProbe
		}
	}
	return VerdictNone
}

// RecordProbe advances the level. A second probe inside the cooldown window
// escalates; a probe also voids any pending success judgement.
func (h *SuspicionHandler) RecordProbe(at time.Time) {
	switch h.level {
	case SuspicionNone:
		h.level = SuspicionProbed
	case SuspicionProbed:
		if at.Sub(h.lastProbeAt) < h.cooldown {
			h.level = SuspicionEscalated
		}
	}
	h.lastProbeAt = at
	h.respondedAt = time.Time{}
}

// SelectStrategy picks the next defensive strategy: random over strategies
// unused in the current cooldown window, never the previous pick when two or
// more are configured.
func (h *SuspicionHandler) SelectStrategy(at time.Time) string {
	fresh := make([]string, 0, len(h.strategies))
	for _, s := range h.strategies {
		if len(h.strategies) >= 2 && s == h.lastStrategy {
			continue
		}
		if used, ok := h.usedAt[s]; ok && at.Sub(used) < h.cooldown {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		for _, s := range h.strategies {
			if len(h.strategies) >= 2 && s == h.lastStrategy {
				continue
			}
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		fresh = h.strategies
	}
	pick := fresh[h.rng.Intn(len(fresh))]
	h.lastStrategy = pick
	h.usedAt[pick] = at
	return pick
}

// ResponseIssued arms the success heuristic: if no probe lands within the
// grace period the level drops back to none.
func (h *SuspicionHandler) ResponseIssued(at time.Time) {
	h.respondedAt = at
}

// Decay applies time-based transitions. Called once per tick.
func (h *SuspicionHandler) Decay(now time.Time) {
	if h.level == SuspicionNone {
		return
	}
	if !h.respondedAt.IsZero() && now.Sub(h.respondedAt) >= h.grace {
		h.reset()
		return
	}
	window := h.cooldown
	if h.level == SuspicionEscalated {
		window = h.escalatedCooldown
	}
	if now.Sub(h.lastProbeAt) >= window {
		h.reset()
	}
}

func (h *SuspicionHandler) reset() {
	h.level = SuspicionNone
	h.respondedAt = time.Time{}
}

func (h *SuspicionHandler) Level() string        { return h.level }
func (h *SuspicionHandler) LastStrategy() string { return h.lastStrategy }

var strategyLines = map[string][]string{
	StrategySelfDeprecating: {
		"lol i wish, i can barely craft a door",
		"bro i died to the same zombie twice today, give me some credit",
		"if i was a bot i'd be way better at this",
	},
	StrategyTechnicalBlame: {
		"my ping is terrible rn, sorry if i seem laggy",
		"this keyboard is half broken lol, keys keep sticking",
		"game keeps freezing on my end, one sec",
	},
	StrategyDeflect: {
		"anyway, you seen any diamonds around here?",
		"lol ok. hey wanna trade some iron?",
		"did you see that creeper take out my wall though",
	},
}

// ResponseLine returns a canned line for the strategy, picked by the
// injected source so tests can pin the sequence.
func (h *SuspicionHandler) ResponseLine(strategy string) string {
	bank, ok := strategyLines[strategy]
	if !ok || len(bank) == 0 {
		bank = strategyLines[StrategyDeflect]
	}
	return bank[h.rng.Intn(len(bank))]
}
