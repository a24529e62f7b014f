package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionFinished("completed", 1)
	m.RecordFrames(1, 1)
	m.RecordTranscriptUpdate()
	m.SetBackendAvailable(true)
}

func TestRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.RecordFrames(10, 3)
	m.RecordFrames(5, 0)
	m.RecordTranscriptUpdate()
	m.RecordSessionFinished("completed", 2.5)
	m.SetBackendAvailable(true)

	out := scrape(t, m)
	want := []string{
		"livescribe_sessions_started_total 1",
		"livescribe_active_sessions 0",
		"livescribe_frames_forwarded_total 15",
		"livescribe_frames_dropped_total 3",
		"livescribe_transcript_updates_total 1",
		`livescribe_sessions_finished_total{outcome="completed"} 1`,
		"livescribe_backend_available 1",
		"livescribe_session_duration_seconds_count 1",
	}
	for _, line := range want {
		if !strings.Contains(out, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// two instances must not collide on registration
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.RecordSessionStarted()

	if !strings.Contains(scrape(t, b), "livescribe_sessions_started_total 0") {
		t.Error("registries should be independent")
	}
}
