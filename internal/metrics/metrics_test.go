package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/dialer"
)

func TestStatusTransitionsAndActive(t *testing.T) {
	m := New("")
	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }
	ev := m.Events()

	ev.OnStatusChange(dialer.StatusConnecting)
	ev.OnStatusChange(dialer.StatusInCall)
	if got := testutil.ToFloat64(m.CallsActive); got != 1 {
		t.Errorf("calls_active = %v, want 1", got)
	}
	clock = clock.Add(42 * time.Second)
	ev.OnStatusChange(dialer.StatusCallEnded)
	ev.OnStatusChange(dialer.StatusIdle)

	if got := testutil.ToFloat64(m.CallsActive); got != 0 {
		t.Errorf("calls_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.StatusTransitions.WithLabelValues("in-call")); got != 1 {
		t.Errorf("in-call transitions = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.SessionDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestErrors(t *testing.T) {
	m := New("")
	m.Events().OnError("boom")
	m.Events().OnError("again")
	if got := testutil.ToFloat64(m.Errors); got != 2 {
		t.Errorf("errors_total = %v, want 2", got)
	}
}

func TestLogEntries_CountsOnlyNewEntries(t *testing.T) {
	m := New("")
	ev := m.Events()
	now := time.Now()
	a := calllog.NewEntry(calllog.KindCallStarted, nil, now)
	b := calllog.NewEntry(calllog.KindSurvey, nil, now)
	c := calllog.NewEntry(calllog.KindCallStarted, nil, now)

	ev.OnCallLogUpdate([]calllog.Entry{a})
	ev.OnCallLogUpdate([]calllog.Entry{a, b})
	ev.OnCallLogUpdate([]calllog.Entry{})
	ev.OnCallLogUpdate([]calllog.Entry{c})

	if got := testutil.ToFloat64(m.LogEntries.WithLabelValues("call_started")); got != 2 {
		t.Errorf("call_started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LogEntries.WithLabelValues("call_survey")); got != 1 {
		t.Errorf("call_survey = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("")
	m.Events().OnStatusChange(dialer.StatusConnecting)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `autodialer_status_transitions_total{status="connecting"} 1`) {
		t.Errorf("metrics output missing transition counter:\n%s", body)
	}
	if !strings.Contains(string(body), "autodialer_calls_active 1") {
		t.Errorf("metrics output missing calls_active gauge:\n%s", body)
	}
}
