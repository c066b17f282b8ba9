package agent

import (
	"math/rand"
	"time"
)

// Idle micro-action kinds. Each is atomic and safe to abandon mid-way.
const (
	IdleLook     = "look"
	IdleStep     = "step"
	IdleJump     = "jump"
	IdleSwapHeld = "swap_held"
)

type IdleAction struct {
	Kind  string
	Yaw   int
	Pitch int
	Dx    int
	Dz    int
	Slot  int
}

type IdleConfig struct {
	MinGap time.Duration
	MaxGap time.Duration
}

// IdleGenerator emits filler micro-motions while an inference call is in
// flight, so the avatar never holds still long enough to read as frozen.
// The sequence is infinite and restartable; Stop needs no cleanup.
type IdleGenerator struct {
	minGap time.Duration
	maxGap time.Duration
	rng    *rand.Rand

	active   bool
	nextAt   time.Time
	lastKind string
}

func NewIdleGenerator(cfg IdleConfig, rng *rand.Rand) *IdleGenerator {
	if cfg.MinGap <= 0 {
		cfg.MinGap = 1500 * time.Millisecond
	}
	if cfg.MaxGap <= cfg.MinGap {
		cfg.MaxGap = cfg.MinGap + 2500*time.Millisecond
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &IdleGenerator{minGap: cfg.MinGap, maxGap: cfg.MaxGap, rng: rng}
}

// Reset (re)starts the sequence. The first action lands within MinGap of the
// restart so entering the waiting state never opens a long still window.
func (g *IdleGenerator) Reset(now time.Time) {
	g.active = true
	g.nextAt = now.Add(g.jitter(g.minGap))
}

func (g *IdleGenerator) Stop() {
	g.active = false
}

func (g *IdleGenerator) Active() bool {
	return g.active
}

// Next returns the due micro-action, or nil when none is due yet. Gaps
// between consecutive actions stay within [MinGap, MaxGap].
func (g *IdleGenerator) Next(now time.Time) *IdleAction {
	if !g.active || now.Before(g.nextAt) {
		return nil
	}
	a := g.pick()
	g.lastKind = a.Kind
	g.nextAt = now.Add(g.minGap + g.jitter(g.maxGap-g.minGap))
	return a
}

func (g *IdleGenerator) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(g.rng.Int63n(int64(max)))
}

var idleWeights = []struct {
	kind   string
	weight int
}{
	{IdleLook, 4},
	{IdleStep, 3},
	{IdleSwapHeld, 2},
	{IdleJump, 1},
}

func (g *IdleGenerator) pick() *IdleAction {
	total := 0
	for _, w := range idleWeights {
		if w.kind == g.lastKind {
			continue
		}
		total += w.weight
	}
	n := g.rng.Intn(total)
	kind := IdleLook
	for _, w := range idleWeights {
		if w.kind == g.lastKind {
			continue
		}
		if n < w.weight {
			kind = w.kind
			break
		}
		n -= w.weight
	}

	a := &IdleAction{Kind: kind}
	switch kind {
	case IdleLook:
		a.Yaw = g.rng.Intn(360) - 180
		a.Pitch = g.rng.Intn(60) - 30
	case IdleStep:
		for a.Dx == 0 && a.Dz == 0 {
			a.Dx = g.rng.Intn(3) - 1
			a.Dz = g.rng.Intn(3) - 1
		}
	case IdleSwapHeld:
		a.Slot = g.rng.Intn(9)
	}
	return a
}
