package jobmonitor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dragonx/sentinel/internal/timeutil"
)

// scriptedRemote replays a fixed sequence of raw statuses, one per Poll
// call, repeating the last entry once exhausted.
type scriptedRemote struct {
	statuses  []string
	percent   []int
	idx       int
	cancelled bool
	errFields [5]string
}

func (s *scriptedRemote) Poll(ctx context.Context) (string, int, [5]string, error) {
	i := s.idx
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	} else {
		s.idx++
	}
	p := -1
	if i < len(s.percent) {
		p = s.percent[i]
	}
	return s.statuses[i], p, s.errFields, nil
}

func (s *scriptedRemote) Cancel(ctx context.Context) error {
	s.cancelled = true
	return nil
}

var _ RemoteJob = (*scriptedRemote)(nil)

func fakePoller() *Poller {
	p := NewPoller(nil)
	p.clock = timeutil.NewMockClock(time.Now())
	return p
}

func TestNormalizeStateAliases(t *testing.T) {
	cases := map[string]State{
		"Results Ready":         StateCompleted,
		"SUCCESS":               StateCompleted,
		"SUCCEEDED":             StateCompleted,
		"FINISHED":              StateCompleted,
		"COMPLETED_SUCCESSFULLY": StateCompleted,
		"running":               StateRunning,
		"QUEUED":                StateQueued,
	}
	for raw, want := range cases {
		got, ok := NormalizeState(raw)
		if !ok || got != want {
			t.Errorf("NormalizeState(%q) = %q, %v; want %q, true", raw, got, ok, want)
		}
	}
}

func TestNormalizeStateUnknownStringNotOK(t *testing.T) {
	_, ok := NormalizeState("some_weird_vendor_status")
	if ok {
		t.Fatalf("expected unknown status to report ok=false")
	}
}

func TestWaitReachesCompletedImmediatelyWhenAlreadyTerminal(t *testing.T) {
	p := fakePoller()
	job := NewJob("j1", KindCompile, &scriptedRemote{statuses: []string{"running"}}, time.Now())
	job.State = StateCompleted

	state := p.Wait(context.Background(), job)
	if state != StateCompleted {
		t.Fatalf("Wait = %q, want COMPLETED", state)
	}
}

func TestWaitPollsUntilCompleted(t *testing.T) {
	p := fakePoller()
	remote := &scriptedRemote{statuses: []string{"pending", "queued", "running", "SUCCESS"}}
	job := NewJob("j1", KindCompile, remote, time.Now())

	state := p.Wait(context.Background(), job)
	if state != StateCompleted {
		t.Fatalf("Wait = %q, want COMPLETED", state)
	}
	if job.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", job.Progress)
	}
}

func TestWaitExtractsRankedErrorFieldOnFailure(t *testing.T) {
	p := fakePoller()
	remote := &scriptedRemote{
		statuses:  []string{"running", "FAILED"},
		errFields: [5]string{"", "quantization overflow", "", "", ""},
	}
	job := NewJob("j1", KindCompile, remote, time.Now())

	state := p.Wait(context.Background(), job)
	if state != StateFailed {
		t.Fatalf("Wait = %q, want FAILED", state)
	}
	if job.Reason != "failure_reason: quantization overflow" {
		t.Fatalf("Reason = %q", job.Reason)
	}
}

func TestWaitTimesOutAndCancels(t *testing.T) {
	p := fakePoller()
	now := time.Now()
	p.clock = timeutil.NewMockClock(now.Add(time.Hour)) // always past deadline

	remote := &scriptedRemote{statuses: []string{"running"}}
	job := NewJob("j1", KindCompile, remote, now)

	state := p.Wait(context.Background(), job)
	if state != StateTimeout {
		t.Fatalf("Wait = %q, want TIMEOUT", state)
	}
	if !remote.cancelled {
		t.Fatalf("expected Cancel to be called on timeout")
	}
	if !strings.Contains(job.Reason, "deadline exceeded") {
		t.Fatalf("Reason = %q, want it to contain %q", job.Reason, "deadline exceeded")
	}
}

func TestWaitAllRecognizesAlreadyTerminalJobsImmediately(t *testing.T) {
	p := fakePoller()
	remote := &scriptedRemote{statuses: []string{"SUCCESS"}}
	job := NewJob("j1", KindCompile, remote, time.Now())
	job.State = StateCompleted // already terminal before WaitAll runs

	results := p.WaitAll(context.Background(), []*Job{job}, time.Now().Add(time.Minute))
	if results["j1"] != StateCompleted {
		t.Fatalf("results[j1] = %q, want COMPLETED", results["j1"])
	}
}

func TestWaitAllWaitsForMultipleJobsConcurrently(t *testing.T) {
	p := fakePoller()
	j1 := NewJob("j1", KindCompile, &scriptedRemote{statuses: []string{"running", "SUCCESS"}}, time.Now())
	j2 := NewJob("j2", KindProfile, &scriptedRemote{statuses: []string{"queued", "running", "FAILED"}}, time.Now())

	results := p.WaitAll(context.Background(), []*Job{j1, j2}, time.Now().Add(time.Minute))
	if results["j1"] != StateCompleted {
		t.Errorf("j1 = %q, want COMPLETED", results["j1"])
	}
	if results["j2"] != StateFailed {
		t.Errorf("j2 = %q, want FAILED", results["j2"])
	}
}

// spyLogger records every Printf call for assertion.
type spyLogger struct {
	lines []string
}

func (l *spyLogger) Printf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestWaitAllLogsOneDiagLinePerSettleRound(t *testing.T) {
	logger := &spyLogger{}
	p := NewPoller(logger)
	p.clock = timeutil.NewMockClock(time.Now())

	j1 := NewJob("j1", KindCompile, &scriptedRemote{statuses: []string{"running", "SUCCESS"}}, time.Now())
	j2 := NewJob("j2", KindProfile, &scriptedRemote{statuses: []string{"queued", "running", "FAILED"}}, time.Now())

	results := p.WaitAll(context.Background(), []*Job{j1, j2}, time.Now().Add(time.Minute))
	if results["j1"] != StateCompleted || results["j2"] != StateFailed {
		t.Fatalf("results = %v", results)
	}

	var roundLines int
	for _, line := range logger.lines {
		if strings.Contains(line, "settle round") {
			roundLines++
		}
	}
	if roundLines == 0 {
		t.Fatalf("expected at least one settle-round diag line, got logger lines: %v", logger.lines)
	}

	var sawCompleted, sawErrored bool
	for _, line := range logger.lines {
		if strings.Contains(line, "completed=1") {
			sawCompleted = true
		}
		if strings.Contains(line, "errors=1") {
			sawErrored = true
		}
	}
	if !sawCompleted || !sawErrored {
		t.Fatalf("expected some round to report completed=1 and some round to report errors=1, got: %v", logger.lines)
	}
}

func TestEstimateProgressFallback(t *testing.T) {
	cases := map[State]int{
		StatePending:   0,
		StateQueued:    10,
		StateRunning:   50,
		StateCompleted: 100,
		StateFailed:    100,
	}
	for s, want := range cases {
		if got := estimateProgress(s); got != want {
			t.Errorf("estimateProgress(%q) = %d, want %d", s, got, want)
		}
	}
}
