package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeEvent      = "EVENT"
	TypeAct        = "ACT"
	TypeTaskStatus = "TASK_STATUS"
	TypeAck        = "ACK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSupportedVersion reports whether a peer's protocol version can be
// handled. Only the major version matters; "1.x" peers interoperate.
func IsSupportedVersion(v string) bool {
	if v == "" || v == Version {
		return true
	}
	return len(v) >= 2 && v[0] == '1' && v[1] == '.'
}
