package agent

// DefaultUserName is the display name used for key issuance when a thread has
// no user name of its own.
const DefaultUserName = "LucidEverything User"

// State is the per-thread session blob the runtime persists between turns.
// Keyed by the root thread id; replies in child threads inherit it.
type State struct {
	APIKey   string `json:"api_key,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name"`
}

func DefaultState() State {
	return State{UserName: DefaultUserName}
}
