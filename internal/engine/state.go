package engine

// State is a stage of the run lifecycle. A run moves strictly forward:
// Init, Setup, Running, Teardown, Reported, Done. No state is skipped
// except Running, which a failed setup bypasses.
type State int32

const (
	StateInit State = iota
	StateSetup
	StateRunning
	StateTeardown
	StateReported
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateTeardown:
		return "teardown"
	case StateReported:
		return "reported"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
