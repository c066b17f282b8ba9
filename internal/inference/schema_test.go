package inference

import (
	"strings"
	"testing"
)

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision([]byte(`{"decision":{"kind":"speak","text":"one sec, placing torches"}}`))
	if err != nil {
		t.Fatalf("parse speak: %v", err)
	}
	if d.Kind != DecideSpeak || d.Text != "one sec, placing torches" {
		t.Fatalf("speak decision: got %+v", d)
	}

	d, err = ParseDecision([]byte(`{"decision":{"kind":"act","skill":"move_to","params":{"target":[10,64,3]}}}`))
	if err != nil {
		t.Fatalf("parse act: %v", err)
	}
	if d.Kind != DecideAct || d.Skill != "move_to" {
		t.Fatalf("act decision: got %+v", d)
	}
	if _, ok := d.Params["target"]; !ok {
		t.Fatalf("act params lost: %+v", d.Params)
	}

	d, err = ParseDecision([]byte(`{"decision":{"kind":"idle","reason":"nothing to do"}}`))
	if err != nil {
		t.Fatalf("parse idle: %v", err)
	}
	if d.Kind != DecideIdle {
		t.Fatalf("idle decision: got %+v", d)
	}
}

func TestParseDecision_Rejects(t *testing.T) {
	bad := []string{
		`not json at all`,
		`{}`,
		`{"decision":{}}`,
		`{"decision":{"kind":"teleport"}}`,
		`{"decision":{"kind":"speak"}}`,         // speak without text
		`{"decision":{"kind":"act"}}`,           // act without skill
		`{"decision":{"kind":"speak","text":"` + strings.Repeat("a", 600) + `"}}`, // over budget
	}
	for _, raw := range bad {
		if _, err := ParseDecision([]byte(raw)); err == nil {
			t.Fatalf("expected reject: %s", raw)
		}
	}
}

func TestPromptPayloadDigest(t *testing.T) {
	a := PromptPayload{AgentID: "A1", System: "persona", Context: "ctx", Trigger: "hi"}
	b := PromptPayload{AgentID: "A1", System: "persona", Context: "ctx", Trigger: "hi"}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest not stable: %s vs %s", a.Digest(), b.Digest())
	}
	c := PromptPayload{AgentID: "A1", System: "persona", Context: "ctx2", Trigger: "hi"}
	if a.Digest() == c.Digest() {
		t.Fatalf("digest ignored context change")
	}
	if len(a.Digest()) != 12 {
		t.Fatalf("digest length: got %d", len(a.Digest()))
	}
}
