package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderExposesObservations(t *testing.T) {
	r := New()
	r.PhaseEntered("listening")
	r.PhaseEntered("processing")
	r.RequestObserved(150*time.Millisecond, false)
	r.RequestObserved(20*time.Second, true)
	r.ErrorSurfaced("network")
	r.PlaybackFailed()
	r.RevealFired("summary+keywords", 3*time.Second)
	r.CycleFinished("completed", 4*time.Second)

	body := scrape(t, r)
	require.Contains(t, body, `resq_session_phase{phase="processing"} 1`)
	require.Contains(t, body, `resq_session_phase{phase="listening"} 0`)
	require.Contains(t, body, `resq_session_phase_entries_total{phase="listening"} 1`)
	require.Contains(t, body, `resq_assistant_request_seconds_count{status="success"} 1`)
	require.Contains(t, body, `resq_assistant_request_seconds_count{status="error"} 1`)
	require.Contains(t, body, `resq_session_errors_total{kind="network"} 1`)
	require.Contains(t, body, `resq_playback_failures_total 1`)
	require.Contains(t, body, `resq_reveal_offset_seconds_count{artifact="summary+keywords"} 1`)
	require.Contains(t, body, `resq_cycles_total{outcome="completed"} 1`)
	require.Contains(t, body, `resq_cycle_duration_seconds_sum 4`)
}

func TestRecordersDoNotShareRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ErrorSurfaced("playback")

	require.Contains(t, scrape(t, a), `resq_session_errors_total{kind="playback"} 1`)
	require.NotContains(t, scrape(t, b), `resq_session_errors_total{kind="playback"}`)
}

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
