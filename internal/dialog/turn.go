package dialog

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message exchanged in a conversation. Turns are values and are
// never mutated after creation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Clone returns a copy of turns that can be appended to without aliasing.
func Clone(turns []Turn) []Turn {
	out := make([]Turn, len(turns), len(turns)+4)
	copy(out, turns)
	return out
}
