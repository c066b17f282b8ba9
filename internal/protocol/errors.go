package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"

	// Skill execution, reported via TASK_STATUS.
	ErrSkillUnknown = "E_SKILL_UNKNOWN"
	ErrPathStuck    = "E_PATH_STUCK"
	ErrTargetLost   = "E_TARGET_LOST"
	ErrTaskTimeout  = "E_TASK_TIMEOUT"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
	ErrSkillUnknown:    {},
	ErrPathStuck:       {},
	ErrTargetLost:      {},
	ErrTaskTimeout:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
