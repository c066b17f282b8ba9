// Package skills is the boundary to the embodied control layer. Skills run
// asynchronously inside the game; invocations are non-blocking and progress
// comes back as TASK_STATUS reports keyed by the caller's task id.
package skills

import "errors"

// ErrUnknownSkill rejects an invocation before it reaches the wire.
var ErrUnknownSkill = errors.New("unknown skill")

// Library is what the controller drives. The task id is the handle: the
// caller picks it at invoke time and every later control or status report
// refers to it.
type Library interface {
	Invoke(agentID, taskID, skill string, params map[string]any) error
	Pause(agentID, taskID string) error
	Resume(agentID, taskID string) error
	Cancel(agentID, taskID string) error
}

var catalog = map[string]struct{}{
	"move_to":  {},
	"follow":   {},
	"gather":   {},
	"mine":     {},
	"craft":    {},
	"place":    {},
	"store":    {},
	"withdraw": {},
	"equip":    {},
	"attack":   {},
	"fish":     {},
	"explore":  {},
}

// Known reports whether the embodied layer implements the skill.
func Known(skill string) bool {
	_, ok := catalog[skill]
	return ok
}
