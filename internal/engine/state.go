package engine

// State is the stage a session's build cycle is in.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDiffing
	StateScheduling
	StateRendering
	StateFinishing
	StateCommitted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StateScheduling:
		return "scheduling"
	case StateRendering:
		return "rendering"
	case StateFinishing:
		return "finishing"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}
