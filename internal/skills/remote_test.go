package skills

import (
	"errors"
	"testing"

	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

type sentAct struct {
	agentID  string
	tasks    []protocol.TaskReq
	controls []protocol.ControlReq
}

type fakeSender struct {
	sent []sentAct
}

func (f *fakeSender) Act(agentID string, instants []protocol.InstantReq, tasks []protocol.TaskReq, controls []protocol.ControlReq) error {
	f.sent = append(f.sent, sentAct{agentID: agentID, tasks: tasks, controls: controls})
	return nil
}

func TestRemote_InvokeAndControls(t *testing.T) {
	f := &fakeSender{}
	r := NewRemote(f)

	if err := r.Invoke("miner_joe", "K_1_1", "move_to", map[string]any{"target": []int{4, 64, 9}}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if err := r.Pause("miner_joe", "K_1_1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := r.Resume("miner_joe", "K_1_1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := r.Cancel("miner_joe", "K_1_1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(f.sent) != 4 {
		t.Fatalf("acts sent: got %d want 4", len(f.sent))
	}
	inv := f.sent[0]
	if inv.agentID != "miner_joe" || len(inv.tasks) != 1 {
		t.Fatalf("invoke act: %+v", inv)
	}
	if tk := inv.tasks[0]; tk.ID != "K_1_1" || tk.Skill != "move_to" {
		t.Fatalf("task req: %+v", tk)
	}
	wantOps := []string{protocol.CtlPause, protocol.CtlResume, protocol.CtlCancel}
	for i, op := range wantOps {
		c := f.sent[i+1]
		if len(c.controls) != 1 || c.controls[0].Op != op || c.controls[0].TaskID != "K_1_1" {
			t.Fatalf("control %s: %+v", op, c)
		}
	}
}

func TestRemote_UnknownSkillNeverReachesWire(t *testing.T) {
	f := &fakeSender{}
	r := NewRemote(f)

	err := r.Invoke("miner_joe", "K_1_1", "teleport", nil)
	if !errors.Is(err, ErrUnknownSkill) {
		t.Fatalf("err: got %v want ErrUnknownSkill", err)
	}
	if len(f.sent) != 0 {
		t.Fatalf("unknown skill hit the wire: %+v", f.sent)
	}
}

func TestKnown(t *testing.T) {
	for _, s := range []string{"move_to", "follow", "mine", "craft", "store"} {
		if !Known(s) {
			t.Fatalf("catalog missing %q", s)
		}
	}
	if Known("fly") {
		t.Fatalf("fly should not be a skill")
	}
}
