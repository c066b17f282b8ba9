package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Decision kinds.
const (
	DecideSpeak = "speak"
	DecideAct   = "act"
	DecideIdle  = "idle"
)

var (
	ErrTimeout = errors.New("inference: deadline exceeded")
	ErrBackend = errors.New("inference: backend error")
)

// PromptPayload is the curated context handed to the backend. System and
// Trigger are never truncated; Context is the budget-bounded middle.
type PromptPayload struct {
	AgentID string `json:"agent_id"`
	System  string `json:"system"`
	Context string `json:"context"`
	Trigger string `json:"trigger,omitempty"`
}

// Digest identifies a payload in step logs without storing the full text.
func (p PromptPayload) Digest() string {
	h := sha256.New()
	h.Write([]byte(p.System))
	h.Write([]byte{0})
	h.Write([]byte(p.Context))
	h.Write([]byte{0})
	h.Write([]byte(p.Trigger))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Decision is the backend's verdict for one prompt.
type Decision struct {
	Kind   string         `json:"kind"` // "speak", "act", "idle"
	Text   string         `json:"text,omitempty"`
	Skill  string         `json:"skill,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// IdleDecision is the fallback applied on timeout or a malformed response.
func IdleDecision(reason string) Decision {
	return Decision{Kind: DecideIdle, Reason: reason}
}

type Result struct {
	Decision Decision
	Err      error
	Latency  time.Duration
}

// Backend produces decisions asynchronously. Submit never blocks; the
// returned channel delivers exactly one Result and is then closed.
type Backend interface {
	Submit(ctx context.Context, p PromptPayload) <-chan Result
}
