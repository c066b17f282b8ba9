package skills

import (
	"fmt"

	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

// ActSender is the slice of the game transport the library needs.
type ActSender interface {
	Act(agentID string, instants []protocol.InstantReq, tasks []protocol.TaskReq, controls []protocol.ControlReq) error
}

// Remote runs skills on the game server over the act channel.
type Remote struct {
	sender ActSender
}

func NewRemote(sender ActSender) *Remote {
	return &Remote{sender: sender}
}

func (r *Remote) Invoke(agentID, taskID, skill string, params map[string]any) error {
	if !Known(skill) {
		return fmt.Errorf("%w: %q", ErrUnknownSkill, skill)
	}
	return r.sender.Act(agentID, nil, []protocol.TaskReq{{ID: taskID, Skill: skill, Params: params}}, nil)
}

func (r *Remote) Pause(agentID, taskID string) error {
	return r.control(agentID, protocol.CtlPause, taskID)
}

func (r *Remote) Resume(agentID, taskID string) error {
	return r.control(agentID, protocol.CtlResume, taskID)
}

func (r *Remote) Cancel(agentID, taskID string) error {
	return r.control(agentID, protocol.CtlCancel, taskID)
}

func (r *Remote) control(agentID, op, taskID string) error {
	return r.sender.Act(agentID, nil, nil, []protocol.ControlReq{{Op: op, TaskID: taskID}})
}
