package orchestrator

// State is the runtime session's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateIdle          State = "idle"
	StateSettingUp     State = "setting-up"
	StateInstalling    State = "installing"
	StateStarting      State = "starting"
	StateServing       State = "serving"
	StateError         State = "error"
)

// transitions lists the legal successors of each state. Error and
// Uninitialized are reachable from everywhere and are not listed.
var transitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateIdle},
	StateIdle:          {StateSettingUp},
	StateSettingUp:     {StateSettingUp, StateInstalling, StateStarting},
	StateInstalling:    {StateSettingUp, StateServing},
	StateStarting:      {StateServing},
	StateServing:       {StateSettingUp, StateInstalling, StateStarting},
	StateError:         {StateInitializing, StateSettingUp, StateInstalling, StateStarting},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if to == StateError || to == StateUninitialized {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

