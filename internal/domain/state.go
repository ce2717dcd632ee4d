package domain

// CoilState is the per-pool detection state.
// Transitions form a path QUIET → COIL → ARMED → ENTER with resets back
// to QUIET; states are never skipped.
type CoilState int

const (
	StateQuiet CoilState = iota
	StateCoil
	StateArmed
	StateEnter
)

func (s CoilState) String() string {
	switch s {
	case StateQuiet:
		return "QUIET"
	case StateCoil:
		return "COIL"
	case StateArmed:
		return "ARMED"
	case StateEnter:
		return "ENTER"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name, so JSON carries "ARMED" rather
// than an enum ordinal.
func (s CoilState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
