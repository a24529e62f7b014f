package notify

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind string
		want Notifier
	}{
		{"desktop", Desktop{}},
		{"log", Log{}},
		{"none", Nop{}},
		{"", Nop{}},
		{"carrier-pigeon", Nop{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := New(tt.kind); got != tt.want {
				t.Errorf("New(%q) = %T, want %T", tt.kind, got, tt.want)
			}
		})
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	n := Log{}

	tests := []struct {
		name string
		call func()
		want []string
	}{
		{"SessionStarted", n.SessionStarted, []string{"Livescribe", "Listening"}},
		{"SessionCompleted", func() { n.SessionCompleted("hello world") }, []string{"Transcript", "hello world"}},
		{"Available", func() { n.AvailabilityChanged(true) }, []string{"Recognition available"}},
		{"Unavailable", func() { n.AvailabilityChanged(false) }, []string{"Recognition unavailable"}},
		{"Error", func() { n.Error("microphone busy") }, []string{"Livescribe Error", "microphone busy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.call()
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("log output should contain %q, got: %s", want, out)
				}
			}
		})
	}
}

func TestNopNotifier(t *testing.T) {
	nop := Nop{}
	nop.SessionStarted()
	nop.SessionCompleted("text")
	nop.AvailabilityChanged(false)
	nop.Error("test message")
}

func TestNotifierInterface(t *testing.T) {
	var _ Notifier = Desktop{}
	var _ Notifier = Log{}
	var _ Notifier = Nop{}
}
