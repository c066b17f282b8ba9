package controller

import "time"

// AgentStatus is one agent's row in the controller snapshot.
type AgentStatus struct {
	Name         string
	State        string
	Suspicion    string
	TaskID       string
	TaskSkill    string
	TaskStatus   string
	LastDecision string

	Steps     uint64
	Successes int
	Failures  int

	StaleDrops  int
	Timeouts    int
	BackendErrs int

	Degraded     bool
	Retired      bool
	RetireReason string
}

// Snapshot is the controller's point-in-time status, published every tick and
// read lock-free by the metrics endpoint and the status log line.
type Snapshot struct {
	RunID   string
	Started time.Time
	Now     time.Time

	Inflight    int
	Queued      int
	EventDrops  uint64
	StatusDrops uint64

	Agents []AgentStatus
}
