package model

// StateKind identifies which variant of QueryState is current
type StateKind string

const (
	StateIdle    StateKind = "idle"
	StateLoading StateKind = "loading"
	StateLoaded  StateKind = "loaded"
	StateError   StateKind = "error"
)

// QueryState is the user-facing state of a live search.
// Results is set only for StateLoaded, Message only for StateError.
type QueryState struct {
	Kind    StateKind `json:"kind"`
	Results []City    `json:"results,omitempty"`
	Message string    `json:"message,omitempty"`
}

// IdleState is the state before any query has been searched
func IdleState() QueryState {
	return QueryState{Kind: StateIdle}
}

// LoadingState marks a search in flight
func LoadingState() QueryState {
	return QueryState{Kind: StateLoading}
}

// LoadedState carries the ordered matches of a finished search
func LoadedState(results []City) QueryState {
	return QueryState{Kind: StateLoaded, Results: results}
}

// ErrorState carries a user-facing message for a failed or empty search
func ErrorState(message string) QueryState {
	return QueryState{Kind: StateError, Message: message}
}
