package gateway

// State is the connection lifecycle phase. It is owned by the Conn and
// stored atomically: both long-lived loops check it every iteration as
// their stop condition, and the Ready→Disconnecting transition may be
// requested from any goroutine on fatal I/O error.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateReady
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}
