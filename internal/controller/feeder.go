package controller

import (
	"math/rand"
	"strings"

	"github.com/seanhlewis/mcagentgym/internal/config"
)

// firstStepLine replaces an empty outcome so the very first prompt of a run
// still reads naturally.
const firstStepLine = "No previous step; this is your first action."

// Feeder hands an agent its next open-ended objective. "cycle" walks the
// library in order, "random" draws with replacement. Peek returns a stable
// candidate until Advance commits it, so an objective refused by a busy
// orchestrator is offered again instead of skipped.
type Feeder struct {
	tasks  []config.Task
	random bool
	rng    *rand.Rand

	cursor int
	next   *config.Task
}

func NewFeeder(tasks []config.Task, mode string, rng *rand.Rand) *Feeder {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Feeder{
		tasks:  append([]config.Task(nil), tasks...),
		random: mode == "random",
		rng:    rng,
	}
}

func (f *Feeder) Empty() bool { return len(f.tasks) == 0 }

func (f *Feeder) Peek() config.Task {
	if len(f.tasks) == 0 {
		return config.Task{}
	}
	if f.next == nil {
		var t config.Task
		if f.random {
			t = f.tasks[f.rng.Intn(len(f.tasks))]
		} else {
			t = f.tasks[f.cursor%len(f.tasks)]
		}
		f.next = &t
	}
	return *f.next
}

func (f *Feeder) Advance() {
	f.next = nil
	f.cursor++
}

var newlineFolder = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FoldOutcome shapes a previous step's outcome for the next prompt: trimmed,
// newlines flattened, capped at 400 characters, and never empty.
func FoldOutcome(outcome string) string {
	s := newlineFolder.Replace(strings.TrimSpace(outcome))
	if s == "" {
		return firstStepLine
	}
	if len(s) > 400 {
		s = s[:400] + "..."
	}
	return s
}
