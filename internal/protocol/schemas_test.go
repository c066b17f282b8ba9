package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const helloSchema = `{
  "type": "object",
  "required": ["type", "protocol_version", "agent_name"],
  "properties": {
    "type": {"const": "HELLO"},
    "protocol_version": {"type": "string"},
    "agent_name": {"type": "string", "minLength": 1},
    "capabilities": {
      "type": "object",
      "properties": {
        "max_queue": {"type": "integer", "minimum": 1},
        "task_status": {"type": "boolean"}
      }
    },
    "resume_token": {"type": "string"}
  }
}`

const eventSchema = `{
  "type": "object",
  "required": ["type", "tick", "agent_id", "events"],
  "properties": {
    "type": {"const": "EVENT"},
    "tick": {"type": "integer", "minimum": 0},
    "agent_id": {"type": "string"},
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "ts"],
        "properties": {
          "kind": {"enum": ["chat", "proximity", "damage", "global", "death", "achievement"]},
          "source": {"type": "string"},
          "data": {"type": "object"},
          "ts": {"type": "integer"}
        }
      }
    }
  }
}`

const actSchema = `{
  "type": "object",
  "required": ["type", "tick", "agent_id"],
  "properties": {
    "type": {"const": "ACT"},
    "tick": {"type": "integer", "minimum": 0},
    "agent_id": {"type": "string"},
    "instants": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string"},
          "type": {"enum": ["SAY", "WHISPER", "LOOK", "STEP", "JUMP", "SWAP_HELD"]},
          "channel": {"enum": ["LOCAL", "GLOBAL"]},
          "text": {"type": "string", "maxLength": 256}
        }
      }
    },
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "skill"],
        "properties": {
          "id": {"type": "string"},
          "skill": {"type": "string", "minLength": 1},
          "params": {"type": "object"}
        }
      }
    },
    "controls": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "op", "task_id"],
        "properties": {
          "op": {"enum": ["PAUSE", "RESUME", "CANCEL"]}
        }
      }
    }
  }
}`

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name, src string) *jsonschema.Schema {
		t.Helper()
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, strings.NewReader(src)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		s, err := c.Compile(name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	hello := compile("hello.schema.json", helloSchema)
	event := compile("event.schema.json", eventSchema)
	act := compile("act.schema.json", actSchema)

	var h any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "agent_name":"miner_joe42",
	  "capabilities":{"max_queue":8,"task_status":true}
	}`), &h)
	validate(hello, h)

	var e any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "tick":1204,
	  "agent_id":"A1",
	  "events":[
	    {"kind":"chat","source":"PlayerOne","data":{"text":"hey, whatcha building?","channel":"LOCAL"},"ts":1724580000123},
	    {"kind":"proximity","source":"PlayerOne","data":{"dist":4},"ts":1724580000123}
	  ],
	  "nearby":[{"id":"P9","type":"PLAYER","name":"PlayerOne","pos":[10,64,-3],"dist":4}],
	  "held":["stone_pickaxe"]
	}`), &e)
	validate(event, e)

	var a any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "tick":1205,
	  "agent_id":"A1",
	  "instants":[{"id":"I_1205_1","type":"SAY","channel":"LOCAL","text":"just messing around with cobble"}],
	  "tasks":[{"id":"K_1205_1","skill":"move_to","params":{"target":[12,64,-3],"tolerance":1.5}}],
	  "controls":[{"id":"C_1205_1","op":"PAUSE","task_id":"K_1200_4"}]
	}`), &a)
	validate(act, a)

	// Unknown event kinds must be rejected, not silently accepted.
	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT","protocol_version":"1.0","tick":1,"agent_id":"A1",
	  "events":[{"kind":"teleport","ts":1}]
	}`), &bad)
	if err := event.Validate(bad); err == nil {
		t.Fatalf("expected unknown kind to fail validation")
	}
}
