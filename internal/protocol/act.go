package protocol

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	AgentID         string       `json:"agent_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
	Tasks           []TaskReq    `json:"tasks,omitempty"`
	Controls        []ControlReq `json:"controls,omitempty"`
}

// InstantReq is an action the server applies immediately: chat lines and
// the idle micro-motions that carry no task lifecycle.
type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "SAY", "WHISPER", "LOOK", "STEP", "JUMP", "SWAP_HELD"

	Channel string `json:"channel,omitempty"` // "LOCAL" or "GLOBAL"
	Text    string `json:"text,omitempty"`
	To      string `json:"to,omitempty"`

	Yaw   int `json:"yaw,omitempty"`
	Pitch int `json:"pitch,omitempty"`
	Dx    int `json:"dx,omitempty"`
	Dz    int `json:"dz,omitempty"`
	Slot  int `json:"slot,omitempty"`
}

// TaskReq hands a skill invocation to the embodied control layer. The skill
// runs asynchronously; progress comes back as TASK_STATUS messages.
type TaskReq struct {
	ID     string         `json:"id"`
	Skill  string         `json:"skill"` // "move_to", "follow", "mine", "craft", ...
	Params map[string]any `json:"params,omitempty"`
}

// ControlReq adjusts a running task without replacing it.
type ControlReq struct {
	ID     string `json:"id"`
	Op     string `json:"op"` // "PAUSE", "RESUME", "CANCEL"
	TaskID string `json:"task_id"`
}

// Instant types.
const (
	InstSay      = "SAY"
	InstWhisper  = "WHISPER"
	InstLook     = "LOOK"
	InstStep     = "STEP"
	InstJump     = "JUMP"
	InstSwapHeld = "SWAP_HELD"
)

// Control ops.
const (
	CtlPause  = "PAUSE"
	CtlResume = "RESUME"
	CtlCancel = "CANCEL"
)

// Task statuses reported by the server.
const (
	TaskRunning   = "RUNNING"
	TaskPaused    = "PAUSED"
	TaskCompleted = "COMPLETED"
	TaskFailed    = "FAILED"
	TaskCancelled = "CANCELLED"
)

// TASK_STATUS (server -> client)
type TaskStatusMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	AgentID         string  `json:"agent_id"`
	TaskID          string  `json:"task_id"`
	Status          string  `json:"status"`
	Progress        float64 `json:"progress,omitempty"`
	Code            string  `json:"code,omitempty"`
	Detail          string  `json:"detail,omitempty"`
}
