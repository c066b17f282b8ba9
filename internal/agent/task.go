package agent

// Task kinds.
const (
	TaskPhysical = "physical"
	TaskSocial   = "social"
	TaskIdle     = "idle"
)

// Task statuses.
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusInterrupted = "interrupted"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// Ops the controller applies for physical directives.
const (
	OpInvoke = "invoke"
	OpPause  = "pause"
	OpResume = "resume"
	OpCancel = "cancel"
)

// Task is one directive handed out of Tick. Physical directives carry an Op
// for the skill library; social and idle directives go to the chat/motion
// transport as-is.
type Task struct {
	Kind string

	// Physical.
	Op     string
	ID     string
	Skill  string
	Params map[string]any

	// Social. Defensive marks a suspicion response rather than a decided
	// reply; Strategy names the cover story used.
	Say       string
	Channel   string
	To        string
	Defensive bool
	Strategy  string

	// Idle filler.
	Idle *IdleAction

	Status string
}
