package supervisor

import "fmt"

// State is the supervisor's lifecycle position.
type State int

const (
	StateInit State = iota
	StatePolling
	StateReboot
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePolling:
		return "polling"
	case StateReboot:
		return "reboot"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
