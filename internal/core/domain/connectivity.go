package domain

// ConnectivityState is the process-wide view of network reachability.
type ConnectivityState int32

const (
	StateOnline ConnectivityState = iota
	StateOffline
)

func (s ConnectivityState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// IsOnline reports whether the state allows network calls.
func (s ConnectivityState) IsOnline() bool {
	return s == StateOnline
}
