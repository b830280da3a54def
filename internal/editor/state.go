package editor

import "fmt"

// Phase is the controller's load lifecycle.
type Phase int

const (
	Loading Phase = iota
	Ready
	LoadFailed
	Unauthenticated
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadFailed:
		return "load_failed"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// SaveState tracks the submit cycle once the form is Ready.
type SaveState int

const (
	SaveIdle SaveState = iota
	Saving
	SaveSucceeded
	SaveFailed
)

func (s SaveState) String() string {
	switch s {
	case SaveIdle:
		return "idle"
	case Saving:
		return "saving"
	case SaveSucceeded:
		return "succeeded"
	case SaveFailed:
		return "failed"
	default:
		return fmt.Sprintf("save(%d)", int(s))
	}
}

func (s SaveState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Navigate is the navigation outcome the controller signals to its host.
type Navigate string

const (
	NavigateNone  Navigate = ""
	NavigateView  Navigate = "view"
	NavigateLogin Navigate = "login"
)
