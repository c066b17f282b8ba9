package agent

import (
	"math/rand"
	"testing"
	"time"
)

func TestIdle_MaxGapGuarantee(t *testing.T) {
	g := NewIdleGenerator(IdleConfig{MinGap: time.Second, MaxGap: 3 * time.Second}, rand.New(rand.NewSource(42)))
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.Reset(start)

	last := start
	emitted := 0
	for tick := 0; tick < 600; tick++ { // one minute at 100ms ticks
		now := start.Add(time.Duration(tick) * 100 * time.Millisecond)
		if a := g.Next(now); a != nil {
			gap := now.Sub(last)
			// Polling adds up to one tick of latency on top of the
			// scheduled gap.
			if gap > 3*time.Second+100*time.Millisecond {
				t.Fatalf("gap %v exceeds max at tick %d", gap, tick)
			}
			if emitted > 0 && gap < time.Second {
				t.Fatalf("gap %v under min spacing at tick %d", gap, tick)
			}
			last = now
			emitted++
		}
	}
	if emitted < 15 {
		t.Fatalf("too few micro-actions in a minute: %d", emitted)
	}
	// The trailing window must also be covered: no silent stretch at the end.
	if start.Add(60 * time.Second).Sub(last) > 3*time.Second {
		t.Fatalf("silent tail longer than max gap")
	}
}

func TestIdle_FirstActionPrompt(t *testing.T) {
	g := NewIdleGenerator(IdleConfig{MinGap: time.Second, MaxGap: 3 * time.Second}, rand.New(rand.NewSource(7)))
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.Reset(start)

	var firstAt time.Time
	for tick := 0; tick < 20; tick++ {
		now := start.Add(time.Duration(tick) * 100 * time.Millisecond)
		if a := g.Next(now); a != nil {
			firstAt = now
			break
		}
	}
	if firstAt.IsZero() || firstAt.Sub(start) > time.Second {
		t.Fatalf("first filler action too late: %v", firstAt.Sub(start))
	}
}

func TestIdle_StopAndRestart(t *testing.T) {
	g := NewIdleGenerator(IdleConfig{MinGap: time.Second, MaxGap: 2 * time.Second}, rand.New(rand.NewSource(1)))
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	g.Reset(start)
	g.Stop()
	if g.Active() {
		t.Fatalf("expected inactive after stop")
	}
	if a := g.Next(start.Add(10 * time.Second)); a != nil {
		t.Fatalf("stopped generator emitted %+v", a)
	}

	g.Reset(start.Add(20 * time.Second))
	found := false
	for tick := 0; tick < 30; tick++ {
		if a := g.Next(start.Add(20*time.Second + time.Duration(tick)*100*time.Millisecond)); a != nil {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("restarted generator never emitted")
	}
}

func TestIdle_ActionShape(t *testing.T) {
	g := NewIdleGenerator(IdleConfig{MinGap: time.Millisecond, MaxGap: 2 * time.Millisecond}, rand.New(rand.NewSource(5)))
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.Reset(start)

	lastKind := ""
	for i := 0; i < 200; i++ {
		now := start.Add(time.Duration(i) * 5 * time.Millisecond)
		a := g.Next(now)
		if a == nil {
			continue
		}
		if a.Kind == lastKind {
			t.Fatalf("same micro-action twice in a row: %q", a.Kind)
		}
		lastKind = a.Kind
		switch a.Kind {
		case IdleLook:
			if a.Yaw < -180 || a.Yaw >= 180 || a.Pitch < -30 || a.Pitch >= 30 {
				t.Fatalf("look out of range: %+v", a)
			}
		case IdleStep:
			if a.Dx == 0 && a.Dz == 0 {
				t.Fatalf("step with no displacement")
			}
			if a.Dx < -1 || a.Dx > 1 || a.Dz < -1 || a.Dz > 1 {
				t.Fatalf("step too large: %+v", a)
			}
		case IdleSwapHeld:
			if a.Slot < 0 || a.Slot > 8 {
				t.Fatalf("slot out of range: %+v", a)
			}
		case IdleJump:
		default:
			t.Fatalf("unknown idle kind %q", a.Kind)
		}
	}
}
