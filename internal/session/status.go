package session

import "fmt"

// Status is the lifecycle position of a recognition session.
type Status int

const (
	Idle Status = iota
	Starting
	Listening
	Stopping
	Failed
	Completed
)

var statusNames = [...]string{
	Idle:      "idle",
	Starting:  "starting",
	Listening: "listening",
	Stopping:  "stopping",
	Failed:    "failed",
	Completed: "completed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether s ends a session.
func (s Status) Terminal() bool {
	return s == Failed || s == Completed
}

// Running reports whether a session in s is acquiring or streaming audio.
func (s Status) Running() bool {
	return s == Starting || s == Listening
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", text)
}
