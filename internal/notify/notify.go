package notify

import (
	"log"
	"os/exec"
)

const appName = "Livescribe"

type Notifier interface {
	SessionStarted()
	SessionCompleted(transcript string)
	AvailabilityChanged(available bool)
	Error(msg string)
}

// New returns the notifier for a configured type: "desktop", "log" or "none".
func New(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

type Desktop struct{}

func (Desktop) SessionStarted() {
	send("-a", appName, appName+": Listening")
}

func (Desktop) SessionCompleted(transcript string) {
	if transcript == "" {
		transcript = "(no speech recognized)"
	}
	send("-a", appName, appName+": Transcript", transcript)
}

func (Desktop) AvailabilityChanged(available bool) {
	if available {
		send("-a", appName, appName+": Recognition available")
		return
	}
	send("-a", appName, "-u", "critical", appName+": Recognition unavailable")
}

func (Desktop) Error(msg string) {
	send("-a", appName, "-u", "critical", msg)
}

func send(args ...string) {
	cmd := exec.Command("notify-send", args...)
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

// Log writes notifications to the standard logger.
type Log struct{}

func (Log) SessionStarted() {
	log.Printf("%s: Listening", appName)
}

func (Log) SessionCompleted(transcript string) {
	log.Printf("%s: Transcript: %q", appName, transcript)
}

func (Log) AvailabilityChanged(available bool) {
	state := "unavailable"
	if available {
		state = "available"
	}
	log.Printf("%s: Recognition %s", appName, state)
}

func (Log) Error(msg string) {
	log.Printf("%s Error: %s", appName, msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) SessionStarted()          {}
func (Nop) SessionCompleted(string)  {}
func (Nop) AvailabilityChanged(bool) {}
func (Nop) Error(msg string)         {}

