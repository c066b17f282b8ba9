// Package controller runs the multi-agent loop: it fans game events out to
// per-agent orchestrators, executes the directives they emit, feeds them
// objectives, and caps global inference concurrency. All orchestrator state
// is owned by the loop goroutine; the outside world talks to it through
// channels and the published snapshot.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seanhlewis/mcagentgym/internal/agent"
	"github.com/seanhlewis/mcagentgym/internal/config"
	"github.com/seanhlewis/mcagentgym/internal/inference"
	"github.com/seanhlewis/mcagentgym/internal/persistence/steplog"
	"github.com/seanhlewis/mcagentgym/internal/protocol"
	"github.com/seanhlewis/mcagentgym/internal/skills"
)

// Transport carries directives to the game server.
type Transport interface {
	Act(agentID string, instants []protocol.InstantReq, tasks []protocol.TaskReq, controls []protocol.ControlReq) error
	EmitChat(agentID, channel, text string) error
}

// Recorder receives one record per decision step and suspicion incident.
type Recorder interface {
	Record(rec steplog.Record)
}

// An agent is flagged degraded after this many consecutive skill failures;
// retirement thresholds come from config.
const degradedAfter = 2

const statusEvery = 30 * time.Second

type Options struct {
	RunID     string // empty = minted
	Agents    []agent.Config
	Backend   inference.Backend
	Transport Transport
	Skills    skills.Library
	Recorders []Recorder

	Tasks      []config.Task
	FeederMode string // "cycle" or "random"
	Names      *NamePool

	TickInterval  time.Duration
	StepDelay     time.Duration
	MaxConcurrent int
	MaxRunTime    time.Duration

	StopAfterFailures  int
	StopAfterSuccesses int

	Seed   int64
	Logger *log.Logger
}

type agentRuntime struct {
	name   string
	orch   *agent.Orchestrator
	feeder *Feeder

	seq         uint64
	open        *openStep
	lastApply   time.Time
	lastOutcome string

	steps     uint64
	successes int

	retired      bool
	retireReason string
}

// openStep tracks the inference call issued for this agent until its result
// lands, for latency and step-log bookkeeping.
type openStep struct {
	seq      uint64
	epoch    uint64
	digest   string
	issuedAt time.Time
}

type agentResult struct {
	agent string
	epoch uint64
	res   inference.Result
}

type Controller struct {
	opts  Options
	runID string
	log   *log.Logger

	agents []*agentRuntime
	byName map[string]*agentRuntime

	events   chan protocol.EventMsg
	statuses chan protocol.TaskStatusMsg
	results  chan agentResult

	slots  chan struct{}
	runCtx context.Context

	inflight    atomic.Int64
	queued      atomic.Int64
	eventDrops  atomic.Uint64
	statusDrops atomic.Uint64

	started time.Time
	snap    atomic.Value // Snapshot
}

func New(opts Options) (*Controller, error) {
	if len(opts.Agents) == 0 {
		return nil, fmt.Errorf("controller: no agents configured")
	}
	if opts.Backend == nil || opts.Transport == nil || opts.Skills == nil {
		return nil, fmt.Errorf("controller: backend, transport, and skills are required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 200 * time.Millisecond
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[gym] ", log.LstdFlags|log.Lmicroseconds)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	pool := opts.Names
	if pool == nil {
		pool = NewNamePool(nil, rng)
	}
	for _, cfg := range opts.Agents {
		pool.MarkUsed(cfg.Persona.Name)
	}

	c := &Controller{
		opts:     opts,
		runID:    opts.RunID,
		log:      opts.Logger,
		byName:   make(map[string]*agentRuntime, len(opts.Agents)),
		events:   make(chan protocol.EventMsg, 1024),
		statuses: make(chan protocol.TaskStatusMsg, 256),
		results:  make(chan agentResult, 64),
		slots:    make(chan struct{}, opts.MaxConcurrent),
	}

	for i, cfg := range opts.Agents {
		if cfg.Persona.Name == "" {
			name, err := pool.Next()
			if err != nil {
				return nil, fmt.Errorf("controller: agent %d: %w", i, err)
			}
			cfg.Persona.Name = name
		}
		if cfg.Seed == 0 && opts.Seed != 0 {
			cfg.Seed = opts.Seed + int64(i) + 1
		}
		if c.byName[cfg.Persona.Name] != nil {
			return nil, fmt.Errorf("controller: duplicate agent name %q", cfg.Persona.Name)
		}
		rt := &agentRuntime{
			name:   cfg.Persona.Name,
			feeder: NewFeeder(opts.Tasks, opts.FeederMode, rand.New(rand.NewSource(seed+int64(i)*7919))),
		}
		rt.orch = agent.New(cfg, c.submitFor(rt))
		c.agents = append(c.agents, rt)
		c.byName[rt.name] = rt
	}
	return c, nil
}

func (c *Controller) RunID() string { return c.runID }

// AgentNames lists the resolved agent names in config order.
func (c *Controller) AgentNames() []string {
	out := make([]string, len(c.agents))
	for i, rt := range c.agents {
		out[i] = rt.name
	}
	return out
}

// IngestEvent hands a server event batch to the loop. Never blocks; a full
// queue drops the batch and counts it.
func (c *Controller) IngestEvent(em protocol.EventMsg) {
	select {
	case c.events <- em:
	default:
		c.eventDrops.Add(1)
	}
}

// IngestTaskStatus hands a skill status report to the loop. Never blocks.
func (c *Controller) IngestTaskStatus(st protocol.TaskStatusMsg) {
	select {
	case c.statuses <- st:
	default:
		c.statusDrops.Add(1)
	}
}

// Snapshot returns the last published status. Safe from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	if s, ok := c.snap.Load().(Snapshot); ok {
		return s
	}
	return Snapshot{RunID: c.runID}
}

// Run drives the loop until ctx is cancelled, the run deadline passes, or
// every agent has retired.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = ctx
	c.started = time.Now()
	c.publishSnapshot(c.started)
	c.log.Printf("run %s: %d agents, inference cap %d", c.runID, len(c.agents), cap(c.slots))

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	var pendingEvents []protocol.EventMsg
	var pendingStatus []protocol.TaskStatusMsg
	lastStatusLog := c.started

	for {
		select {
		case <-ctx.Done():
			c.publishSnapshot(time.Now())
			return ctx.Err()
		case em := <-c.events:
			pendingEvents = append(pendingEvents, em)
		case st := <-c.statuses:
			pendingStatus = append(pendingStatus, st)
		case r := <-c.results:
			c.applyResult(r, time.Now())
		case now := <-ticker.C:
			c.step(now, pendingEvents, pendingStatus)
			pendingEvents = pendingEvents[:0]
			pendingStatus = pendingStatus[:0]
			c.publishSnapshot(now)

			if now.Sub(lastStatusLog) >= statusEvery {
				lastStatusLog = now
				c.logStatus(now)
			}
			if c.opts.MaxRunTime > 0 && now.Sub(c.started) >= c.opts.MaxRunTime {
				c.log.Printf("run %s: deadline reached after %s", c.runID, c.opts.MaxRunTime)
				return nil
			}
			if c.allRetired() {
				c.log.Printf("run %s: all agents retired", c.runID)
				return nil
			}
		}
	}
}

// step advances every agent one tick: statuses first so completions free the
// state machine, then events, then objective feeding and the directive.
func (c *Controller) step(now time.Time, events []protocol.EventMsg, statuses []protocol.TaskStatusMsg) {
	for _, st := range statuses {
		c.applyTaskStatus(st, now)
	}
	for _, em := range events {
		c.fanOut(em, now)
	}

	for _, rt := range c.agents {
		c.maybeAssign(rt, now)
		if d := rt.orch.Tick(now); d != nil {
			c.execDirective(rt, d, now)
		}
		c.checkRetirement(rt)
	}
}

func (c *Controller) fanOut(em protocol.EventMsg, now time.Time) {
	if em.AgentID != "" {
		rt := c.byName[em.AgentID]
		if rt == nil {
			c.eventDrops.Add(uint64(len(em.Events)))
			return
		}
		if len(em.Nearby) > 0 || len(em.Held) > 0 {
			rt.orch.SetVisual(visualFrom(em, now))
		}
		c.deliver(rt, em.Events)
		return
	}
	// Unaddressed batches are global; every agent hears them.
	for _, rt := range c.agents {
		c.deliver(rt, em.Events)
	}
}

func (c *Controller) deliver(rt *agentRuntime, events []protocol.WireEvent) {
	for _, w := range events {
		ev, err := agent.Normalize(w)
		if err != nil {
			c.eventDrops.Add(1)
			continue
		}
		rt.orch.HandleEvent(ev)
	}
}

func (c *Controller) applyTaskStatus(st protocol.TaskStatusMsg, now time.Time) {
	rt := c.byName[st.AgentID]
	if rt == nil {
		return
	}
	// The skill name is gone from the orchestrator once the task closes, so
	// look it up before applying.
	snap := rt.orch.Snapshot()
	skillName := ""
	if snap.TaskID == st.TaskID {
		skillName = snap.TaskSkill
	}
	rt.orch.OnTaskStatus(st.TaskID, st.Status)

	switch st.Status {
	case protocol.TaskCompleted:
		rt.successes++
		rt.lastApply = now
		rt.lastOutcome = fmt.Sprintf("Completed %s.", skillName)
	case protocol.TaskFailed:
		rt.lastApply = now
		detail := st.Code
		if st.Detail != "" {
			detail += " " + st.Detail
		}
		rt.lastOutcome = fmt.Sprintf("Failed %s: %s", skillName, detail)
	}
}

// maybeAssign offers the next objective to an idle agent, respecting the
// per-agent pacing delay.
func (c *Controller) maybeAssign(rt *agentRuntime, now time.Time) {
	if rt.retired || rt.feeder.Empty() || rt.orch.State() != agent.StateIdle {
		return
	}
	if c.opts.StepDelay > 0 && !rt.lastApply.IsZero() && now.Sub(rt.lastApply) < c.opts.StepDelay {
		return
	}
	t := rt.feeder.Peek()
	if rt.orch.AssignObjective(now, t.ID, t.Description, FoldOutcome(rt.lastOutcome)) {
		rt.feeder.Advance()
	}
}

func (c *Controller) execDirective(rt *agentRuntime, t *agent.Task, now time.Time) {
	switch t.Kind {
	case agent.TaskSocial:
		if err := c.opts.Transport.EmitChat(rt.name, t.Channel, t.Say); err != nil {
			c.log.Printf("agent %s: chat: %v", rt.name, err)
		}
		if t.Defensive {
			c.record(steplog.Record{
				Kind:     steplog.KindSuspicion,
				RunID:    c.runID,
				Agent:    rt.name,
				TS:       now.UnixMilli(),
				Level:    rt.orch.Snapshot().Suspicion,
				Strategy: t.Strategy,
				Line:     t.Say,
			})
		} else {
			rt.lastOutcome = fmt.Sprintf("Said: %q", t.Say)
		}

	case agent.TaskIdle:
		inst := instantFor(t.Idle)
		if err := c.opts.Transport.Act(rt.name, []protocol.InstantReq{inst}, nil, nil); err != nil {
			c.log.Printf("agent %s: idle motion: %v", rt.name, err)
		}

	case agent.TaskPhysical:
		c.execPhysical(rt, t)
	}
}

func (c *Controller) execPhysical(rt *agentRuntime, t *agent.Task) {
	var err error
	switch t.Op {
	case agent.OpInvoke:
		err = c.opts.Skills.Invoke(rt.name, t.ID, t.Skill, t.Params)
		if err != nil {
			// Contained: the decision becomes a locally failed task and the
			// agent starts a fresh cycle. Nothing reaches the game chat.
			rt.orch.OnTaskStatus(t.ID, protocol.TaskFailed)
			rt.lastOutcome = fmt.Sprintf("Failed %s: not available.", t.Skill)
		}
	case agent.OpPause:
		err = c.opts.Skills.Pause(rt.name, t.ID)
	case agent.OpResume:
		err = c.opts.Skills.Resume(rt.name, t.ID)
	case agent.OpCancel:
		err = c.opts.Skills.Cancel(rt.name, t.ID)
	}
	if err != nil {
		c.log.Printf("agent %s: %s %s (%s): %v", rt.name, t.Op, t.ID, t.Skill, err)
	}
}

// submitFor builds the non-blocking submit hook for one agent. It runs on
// the loop goroutine (called from inside Tick/AssignObjective), so touching
// the runtime here is safe.
func (c *Controller) submitFor(rt *agentRuntime) agent.SubmitFunc {
	return func(p inference.PromptPayload, epoch uint64) {
		rt.seq++
		rt.open = &openStep{seq: rt.seq, epoch: epoch, digest: p.Digest(), issuedAt: time.Now()}
		go c.callBackend(rt.name, p, epoch)
	}
}

// callBackend waits for a concurrency slot, runs the call, and posts the
// result back to the loop. Lives on its own goroutine per call.
func (c *Controller) callBackend(name string, p inference.PromptPayload, epoch uint64) {
	ctx := c.runCtx
	select {
	case c.slots <- struct{}{}:
	default:
		// Over the cap; the agent keeps idling while this call waits its turn.
		c.queued.Add(1)
		select {
		case c.slots <- struct{}{}:
			c.queued.Add(-1)
		case <-ctx.Done():
			c.queued.Add(-1)
			return
		}
	}
	c.inflight.Add(1)
	defer func() {
		c.inflight.Add(-1)
		<-c.slots
	}()

	res := <-c.opts.Backend.Submit(ctx, p)
	select {
	case c.results <- agentResult{agent: name, epoch: epoch, res: res}:
	case <-ctx.Done():
	}
}

func (c *Controller) applyResult(r agentResult, now time.Time) {
	rt := c.byName[r.agent]
	if rt == nil {
		return
	}
	open := rt.open
	matched := open != nil && open.epoch == r.epoch

	before := rt.orch.Snapshot().StaleDrops
	rt.orch.OnInferenceResult(r.epoch, r.res)
	stale := rt.orch.Snapshot().StaleDrops > before

	if !matched {
		return
	}
	rt.open = nil
	rt.steps++
	rt.lastApply = now

	// Speak outcomes are set when the line actually goes out; an applied idle
	// decision is itself the outcome.
	if !stale && r.res.Err == nil && r.res.Decision.Kind == inference.DecideIdle {
		rt.lastOutcome = "Chose to wait."
	}

	lat := r.res.Latency
	if lat <= 0 {
		lat = now.Sub(open.issuedAt)
	}
	rec := steplog.Record{
		Kind:         steplog.KindStep,
		RunID:        c.runID,
		Agent:        rt.name,
		Seq:          open.seq,
		TS:           now.UnixMilli(),
		State:        rt.orch.State(),
		PromptDigest: open.digest,
		LatencyMS:    lat.Milliseconds(),
	}
	if b, err := json.Marshal(r.res.Decision); err == nil {
		rec.Decision = b
	}
	if cur := rt.orch.Snapshot(); cur.TaskID != "" {
		rec.TaskID = cur.TaskID
	}
	switch {
	case stale:
		rec.Err = "stale result discarded"
	case r.res.Err != nil:
		rec.Err = r.res.Err.Error()
	}
	c.record(rec)
}

func (c *Controller) checkRetirement(rt *agentRuntime) {
	if rt.retired {
		return
	}
	if n := c.opts.StopAfterFailures; n > 0 && rt.orch.Failures() >= n {
		rt.retired = true
		rt.retireReason = fmt.Sprintf("%d consecutive skill failures", rt.orch.Failures())
		c.log.Printf("agent %s retired: %s", rt.name, rt.retireReason)
		return
	}
	if n := c.opts.StopAfterSuccesses; n > 0 && rt.successes >= n {
		rt.retired = true
		rt.retireReason = fmt.Sprintf("completed %d tasks", rt.successes)
		c.log.Printf("agent %s retired: %s", rt.name, rt.retireReason)
	}
}

func (c *Controller) allRetired() bool {
	for _, rt := range c.agents {
		if !rt.retired {
			return false
		}
	}
	return len(c.agents) > 0
}

func (c *Controller) record(rec steplog.Record) {
	for _, r := range c.opts.Recorders {
		r.Record(rec)
	}
}

func (c *Controller) publishSnapshot(now time.Time) {
	s := Snapshot{
		RunID:       c.runID,
		Started:     c.started,
		Now:         now,
		Inflight:    int(c.inflight.Load()),
		Queued:      int(c.queued.Load()),
		EventDrops:  c.eventDrops.Load(),
		StatusDrops: c.statusDrops.Load(),
		Agents:      make([]AgentStatus, 0, len(c.agents)),
	}
	for _, rt := range c.agents {
		st := rt.orch.Snapshot()
		s.Agents = append(s.Agents, AgentStatus{
			Name:         st.Name,
			State:        st.State,
			Suspicion:    st.Suspicion,
			TaskID:       st.TaskID,
			TaskSkill:    st.TaskSkill,
			TaskStatus:   st.TaskStatus,
			LastDecision: st.LastDecision,
			Steps:        rt.steps,
			Successes:    rt.successes,
			Failures:     st.Failures,
			StaleDrops:   st.StaleDrops,
			Timeouts:     st.Timeouts,
			BackendErrs:  st.BackendErrs,
			Degraded:     st.Failures >= degradedAfter,
			Retired:      rt.retired,
			RetireReason: rt.retireReason,
		})
	}
	c.snap.Store(s)
}

func (c *Controller) logStatus(now time.Time) {
	s := c.Snapshot()
	c.log.Printf("status run=%s up=%s inflight=%d queued=%d event_drops=%d",
		c.runID, now.Sub(c.started).Round(time.Second), s.Inflight, s.Queued, s.EventDrops)
	for _, a := range s.Agents {
		c.log.Printf("  %s state=%s susp=%s steps=%d ok=%d fail=%d last=%s",
			a.Name, a.State, a.Suspicion, a.Steps, a.Successes, a.Failures, a.LastDecision)
	}
}

func instantFor(a *agent.IdleAction) protocol.InstantReq {
	switch a.Kind {
	case agent.IdleStep:
		return protocol.InstantReq{Type: protocol.InstStep, Dx: a.Dx, Dz: a.Dz}
	case agent.IdleJump:
		return protocol.InstantReq{Type: protocol.InstJump}
	case agent.IdleSwapHeld:
		return protocol.InstantReq{Type: protocol.InstSwapHeld, Slot: a.Slot}
	default:
		return protocol.InstantReq{Type: protocol.InstLook, Yaw: a.Yaw, Pitch: a.Pitch}
	}
}

func visualFrom(em protocol.EventMsg, now time.Time) agent.Visual {
	v := agent.Visual{Held: em.Held, At: now}
	for _, e := range em.Nearby {
		v.Nearby = append(v.Nearby, agent.Entity{ID: e.ID, Type: e.Type, Name: e.Name, Dist: e.Dist})
	}
	return v
}
