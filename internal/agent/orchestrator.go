package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/seanhlewis/mcagentgym/internal/inference"
	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

// Orchestrator states.
const (
	StateIdle       = "IDLE"
	StateExecuting  = "EXECUTING_PHYSICAL"
	StateAwaiting   = "AWAITING_INFERENCE"
	StateResponding = "RESPONDING_SOCIAL"
	StateSuspicion  = "HANDLING_SUSPICION"
)

// SubmitFunc schedules one inference call for this agent. It must not
// block; the result is delivered back through OnInferenceResult carrying
// the same epoch.
type SubmitFunc func(payload inference.PromptPayload, epoch uint64)

type Config struct {
	Persona      Persona
	Suspicion    SuspicionConfig
	Idle         IdleConfig
	PromptBudget int
	Seed         int64
}

// PendingInference is the single outstanding call an orchestrator may have.
type PendingInference struct {
	Payload  inference.PromptPayload
	IssuedAt time.Time
	Epoch    uint64
}

// Orchestrator arbitrates one agent between physical work, social replies,
// and idle filler. It is a cooperative state machine: HandleEvent latches
// interrupts, Tick advances and returns at most one directive, and the two
// are never called concurrently for the same agent.
type Orchestrator struct {
	persona Persona
	context *ContextManager
	susp    *SuspicionHandler
	idler   *IdleGenerator
	submit  SubmitFunc

	state     string
	prevState string

	cur *Task   // current physical task, nil when none
	ops []*Task // queued pause/resume/cancel/invoke directives

	pending  *PendingInference
	epoch    uint64
	decision *inference.Decision // speak decision waiting for emission

	socialTrigger *Event
	suspPending   bool
	retrigger     bool

	seq          uint64
	failures     int
	staleDrops   int
	timeouts     int
	backendErrs  int
	lastDecision string
}

func New(cfg Config, submit SubmitFunc) *Orchestrator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	if cfg.Persona.MemoryWindow <= 0 {
		cfg.Persona.MemoryWindow = 10
	}
	return &Orchestrator{
		persona: cfg.Persona,
		context: NewContextManager(cfg.Persona.MemoryWindow, cfg.PromptBudget),
		susp:    NewSuspicionHandler(cfg.Suspicion, rng),
		idler:   NewIdleGenerator(cfg.Idle, rng),
		submit:  submit,
		state:   StateIdle,
	}
}

func (o *Orchestrator) Name() string  { return o.persona.Name }
func (o *Orchestrator) State() string { return o.state }

// HandleEvent folds one event into the agent's state. Side effects only;
// directives come out of Tick.
func (o *Orchestrator) HandleEvent(ev Event) {
	if ev.Source == o.persona.Name {
		return // own lines echo back; they are not triggers
	}

	if o.susp.Inspect(ev) == VerdictProbe {
		o.context.Update(ev)
		o.susp.RecordProbe(ev.At)
		o.interruptForSuspicion()
		return
	}

	o.context.Update(ev)
	if ev.Conversational() {
		o.socialInterrupt(ev)
	}
}

// SetVisual replaces the what-the-avatar-sees snapshot.
func (o *Orchestrator) SetVisual(v Visual) {
	o.context.SetVisual(v)
}

func (o *Orchestrator) interruptForSuspicion() {
	if o.state != StateSuspicion {
		o.prevState = o.state
	}
	o.parkPhysical()
	if o.pending != nil {
		// The in-flight call answers a world that no longer exists; its
		// result is stale on arrival.
		o.epoch++
	}
	o.state = StateSuspicion
	o.suspPending = true
}

func (o *Orchestrator) socialInterrupt(ev Event) {
	switch o.state {
	case StateIdle, StateExecuting:
		if o.pending != nil {
			o.retrigger = true
			return
		}
		e := ev
		o.socialTrigger = &e
	default:
		// Already busy thinking or responding; the line is in memory and
		// folds into the next prompt.
		o.retrigger = true
	}
}

// Tick advances the state machine and returns the next directive, or nil
// when the avatar needs nothing this tick. Never blocks.
func (o *Orchestrator) Tick(now time.Time) *Task {
	o.susp.Decay(now)

	// Control directives flush first so a pause is never delayed behind a
	// fresh decision.
	if t := o.popOp(); t != nil {
		return t
	}

	if o.suspPending {
		return o.respondSuspicion(now)
	}

	if o.socialTrigger != nil && o.pending == nil {
		ev := *o.socialTrigger
		o.socialTrigger = nil
		o.issueInference(now, formatTrigger(ev))
		return o.popOp()
	}

	if o.retrigger && o.pending == nil && (o.state == StateIdle || o.state == StateExecuting) {
		o.retrigger = false
		if line, ok := o.context.LastLine(); ok && line.Source != o.persona.Name {
			o.issueInference(now, line.Source+": "+line.Text)
			return o.popOp()
		}
	}

	switch o.state {
	case StateResponding:
		return o.emitSpeak()
	case StateAwaiting:
		if o.pending == nil {
			o.restoreAfterWait()
			return nil
		}
		if a := o.idler.Next(now); a != nil {
			return &Task{Kind: TaskIdle, Idle: a, Status: StatusPending}
		}
	}
	return nil
}

// AssignObjective starts a planning cycle for a fed task. Returns false when
// the agent is busy; the controller retries on a later tick.
func (o *Orchestrator) AssignObjective(now time.Time, id, desc, lastOutcome string) bool {
	if o.state != StateIdle || o.pending != nil || o.suspPending || o.socialTrigger != nil {
		return false
	}
	o.context.SetObjective(id, desc, lastOutcome)
	o.issueInference(now, "")
	return true
}

func (o *Orchestrator) issueInference(now time.Time, trigger string) {
	o.parkPhysical()
	o.epoch++
	payload := o.context.BuildPrompt(o.persona, o.susp.Level(), trigger)
	o.pending = &PendingInference{Payload: payload, IssuedAt: now, Epoch: o.epoch}
	o.state = StateAwaiting
	o.idler.Reset(now)
	if o.submit != nil {
		o.submit(payload, o.epoch)
	}
}

// OnInferenceResult applies a completed call. Results whose epoch no longer
// matches are dropped; that is the expected race outcome, not an error.
func (o *Orchestrator) OnInferenceResult(epoch uint64, res inference.Result) {
	if o.pending == nil || epoch != o.epoch {
		o.staleDrops++
		if o.pending != nil && epoch == o.pending.Epoch {
			o.pending = nil
			if o.state == StateAwaiting {
				o.restoreAfterWait()
			}
		}
		return
	}
	o.pending = nil

	d := res.Decision
	if res.Err != nil {
		switch {
		case errors.Is(res.Err, inference.ErrTimeout):
			o.timeouts++
		default:
			o.backendErrs++
		}
		d = inference.IdleDecision("inference failed")
	}

	switch d.Kind {
	case inference.DecideSpeak:
		dd := d
		o.decision = &dd
		o.state = StateResponding
		o.idler.Stop()
	case inference.DecideAct:
		o.startTask(d)
		o.lastDecision = "act:" + d.Skill
	default:
		o.lastDecision = "idle"
		o.restoreAfterWait()
	}
}

func (o *Orchestrator) emitSpeak() *Task {
	d := o.decision
	o.decision = nil
	o.lastDecision = "speak"
	if o.resumePhysical() {
		o.state = StateExecuting
	} else {
		o.state = StateIdle
	}
	return &Task{Kind: TaskSocial, Say: d.Text, Channel: "LOCAL", Status: StatusPending}
}

func (o *Orchestrator) respondSuspicion(now time.Time) *Task {
	strategy := o.susp.SelectStrategy(now)
	line := o.susp.ResponseLine(strategy)
	o.susp.ResponseIssued(now)
	o.suspPending = false
	o.lastDecision = "suspicion:" + strategy

	o.state = o.prevState
	switch o.state {
	case StateExecuting:
		o.resumePhysical()
	case StateAwaiting:
		if o.pending == nil {
			o.restoreAfterWait()
		}
	case "":
		o.state = StateIdle
	}
	return &Task{Kind: TaskSocial, Say: line, Channel: "LOCAL", Defensive: true, Strategy: strategy, Status: StatusPending}
}

func (o *Orchestrator) startTask(d inference.Decision) {
	if o.cur != nil {
		o.ops = append(o.ops, &Task{Kind: TaskPhysical, Op: OpCancel, ID: o.cur.ID, Skill: o.cur.Skill, Status: o.cur.Status})
	}
	o.seq++
	o.cur = &Task{
		Kind:   TaskPhysical,
		ID:     fmt.Sprintf("K_%d_%d", o.epoch, o.seq),
		Skill:  d.Skill,
		Params: d.Params,
		Status: StatusPending,
	}
	o.ops = append(o.ops, &Task{
		Kind:   TaskPhysical,
		Op:     OpInvoke,
		ID:     o.cur.ID,
		Skill:  o.cur.Skill,
		Params: o.cur.Params,
		Status: StatusPending,
	})
	o.state = StateExecuting
	o.idler.Stop()
}

// OnTaskStatus applies a skill-library status report for the current task.
func (o *Orchestrator) OnTaskStatus(taskID, status string) {
	if o.cur == nil || o.cur.ID != taskID {
		return
	}
	switch status {
	case protocol.TaskRunning:
		if o.cur.Status != StatusInterrupted || o.state == StateExecuting {
			o.cur.Status = StatusRunning
		}
	case protocol.TaskPaused:
		o.cur.Status = StatusInterrupted
	case protocol.TaskCompleted:
		o.cur = nil
		o.failures = 0
		if o.state == StateExecuting {
			o.state = StateIdle
		}
	case protocol.TaskFailed:
		o.cur = nil
		o.failures++
		if o.state == StateExecuting {
			o.state = StateIdle
		}
	case protocol.TaskCancelled:
		o.cur = nil
		if o.state == StateExecuting {
			o.state = StateIdle
		}
	}
}

func (o *Orchestrator) popOp() *Task {
	if len(o.ops) == 0 {
		return nil
	}
	t := o.ops[0]
	o.ops = o.ops[1:]
	return t
}

func (o *Orchestrator) parkPhysical() {
	if o.cur != nil && (o.cur.Status == StatusRunning || o.cur.Status == StatusPending) {
		o.cur.Status = StatusInterrupted
		o.ops = append(o.ops, &Task{Kind: TaskPhysical, Op: OpPause, ID: o.cur.ID, Skill: o.cur.Skill, Status: StatusInterrupted})
	}
}

func (o *Orchestrator) resumePhysical() bool {
	if o.cur != nil && o.cur.Status == StatusInterrupted {
		o.cur.Status = StatusRunning
		o.ops = append(o.ops, &Task{Kind: TaskPhysical, Op: OpResume, ID: o.cur.ID, Skill: o.cur.Skill, Status: StatusRunning})
		return true
	}
	return false
}

func (o *Orchestrator) restoreAfterWait() {
	o.idler.Stop()
	if o.resumePhysical() {
		o.state = StateExecuting
	} else {
		o.state = StateIdle
	}
}

// Pending exposes the outstanding call, nil when none.
func (o *Orchestrator) Pending() *PendingInference {
	return o.pending
}

// Failures is the consecutive skill-failure count since the last success.
func (o *Orchestrator) Failures() int { return o.failures }

// Status is one row of the controller's status snapshot.
type Status struct {
	Name         string
	State        string
	Suspicion    string
	TaskID       string
	TaskSkill    string
	TaskStatus   string
	PendingSince time.Time
	Failures     int
	StaleDrops   int
	Timeouts     int
	BackendErrs  int
	LastDecision string
}

func (o *Orchestrator) Snapshot() Status {
	s := Status{
		Name:         o.persona.Name,
		State:        o.state,
		Suspicion:    o.susp.Level(),
		Failures:     o.failures,
		StaleDrops:   o.staleDrops,
		Timeouts:     o.timeouts,
		BackendErrs:  o.backendErrs,
		LastDecision: o.lastDecision,
	}
	if o.cur != nil {
		s.TaskID = o.cur.ID
		s.TaskSkill = o.cur.Skill
		s.TaskStatus = o.cur.Status
	}
	if o.pending != nil {
		s.PendingSince = o.pending.IssuedAt
	}
	return s
}

func formatTrigger(ev Event) string {
	if ev.Text == "" {
		return ""
	}
	return ev.Source + ": " + ev.Text
}
