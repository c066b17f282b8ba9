package protocol

// Event kinds carried on the wire. The server plugin tags each event with
// exactly one of these before streaming it.
const (
	EventChat        = "chat"
	EventProximity   = "proximity"
	EventDamage      = "damage"
	EventGlobal      = "global"
	EventDeath       = "death"
	EventAchievement = "achievement"
)

// WireEvent is one raw event as streamed by the game-server plugin.
// Delivery is at-least-once and ordered per source only.
type WireEvent struct {
	Kind   string         `json:"kind"`
	Source string         `json:"source,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	TS     int64          `json:"ts"` // unix millis
}

// EVENT (server -> client): a batch of events scoped to one agent.
type EventMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	AgentID         string      `json:"agent_id"`
	Events          []WireEvent `json:"events"`

	// Visual context piggybacked on the batch when it changed.
	Nearby []EntityObs `json:"nearby,omitempty"`
	Held   []string    `json:"held,omitempty"`
}

type EntityObs struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "PLAYER", "AGENT", "MOB", "ITEM"
	Name string `json:"name,omitempty"`
	Pos  [3]int `json:"pos"`
	Dist int    `json:"dist,omitempty"`
}
