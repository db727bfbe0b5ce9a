// Package jobmonitor tracks cloud optimization jobs through their state
// machine: polling with jittered backoff, normalizing server status
// strings, extracting failure reasons, and estimating progress when the
// server doesn't report it directly.
package jobmonitor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/dragonx/sentinel/internal/timeutil"
)

// State is a normalized job state.
type State string

const (
	StatePending   State = "PENDING"
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateTimeout   State = "TIMEOUT"
	StateCancelled State = "CANCELLED"
	StateRejected  State = "REJECTED"
)

// Terminal reports whether state requires no further polling.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimeout, StateCancelled, StateRejected:
		return true
	default:
		return false
	}
}

var successAliases = map[string]State{
	"results ready":          StateCompleted,
	"success":                StateCompleted,
	"succeeded":              StateCompleted,
	"finished":               StateCompleted,
	"completed_successfully": StateCompleted,
	"completed":              StateCompleted,
	"pending":                StatePending,
	"queued":                 StateQueued,
	"running":                StateRunning,
	"in_progress":            StateRunning,
	"failed":                 StateFailed,
	"error":                  StateFailed,
	"timeout":                StateTimeout,
	"timed_out":              StateTimeout,
	"cancelled":              StateCancelled,
	"canceled":               StateCancelled,
	"rejected":               StateRejected,
}

// NormalizeState maps a raw server status string to a State, case
// insensitively. Unknown strings return ok=false; Poller.pollOnce then
// treats them as PENDING and logs a warning.
func NormalizeState(raw string) (State, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	s, ok := successAliases[key]
	return s, ok
}

// Kind identifies the job type, which determines its default timeout.
type Kind string

const (
	KindCompile  Kind = "compile"
	KindProfile  Kind = "profile"
	KindLink     Kind = "link"
	KindQuantize Kind = "quantize"
)

// DefaultTimeout returns the spec's per-kind deadline.
func (k Kind) DefaultTimeout() time.Duration {
	switch k {
	case KindCompile:
		return 20 * time.Minute
	case KindProfile:
		return 15 * time.Minute
	case KindLink:
		return 10 * time.Minute
	case KindQuantize:
		return 15 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// progressByState is consulted when the server reports no percent-complete.
var progressByState = map[State]int{
	StatePending: 0,
	StateQueued:  10,
	StateRunning: 50,
}

// estimateProgress implements the spec's fallback progress estimation:
// terminal states are always 100, others come from progressByState.
func estimateProgress(s State) int {
	if s.Terminal() {
		return 100
	}
	if p, ok := progressByState[s]; ok {
		return p
	}
	return 0
}

// errorFields is the ranked list of fields probed for a FAILED job's reason.
var errorFields = []string{"status.message", "failure_reason", "status.error", "details", "metadata"}

// RemoteJob is the subset of the cloud service's job-status API the monitor
// polls. A real implementation wraps the cloud.Service client; tests supply
// a fake.
type RemoteJob interface {
	// Poll returns the server's current raw status string, a percent
	// complete (negative if the server doesn't report one), and the raw
	// field values for the ranked error-field list (same order as
	// errorFields; empty string for fields the job doesn't carry).
	Poll(ctx context.Context) (rawStatus string, percent int, errorFieldValues [5]string, err error)
	// Cancel requests cancellation; used on timeout.
	Cancel(ctx context.Context) error
}

// Job tracks one monitored cloud job's normalized state over time.
type Job struct {
	ID           string
	Kind         Kind
	DashboardURL string
	Remote       RemoteJob

	State      State
	Progress   int
	Reason     string
	RawPayload string
	Started    time.Time
	Deadline   time.Time
}

// NewJob wraps remote as a trackable Job with kind's default timeout,
// starting the deadline clock at now.
func NewJob(id string, kind Kind, remote RemoteJob, now time.Time) *Job {
	return &Job{
		ID:       id,
		Kind:     kind,
		Remote:   remote,
		State:    StatePending,
		Started:  now,
		Deadline: now.Add(kind.DefaultTimeout()),
	}
}

// Logger receives state-transition and normalization warnings.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

const (
	pollInitial = 2 * time.Second
	pollFactor  = 1.5
	pollCap     = 30 * time.Second
	jitterFrac  = 0.1
)

// Poller polls jobs (Wait for one, WaitAll for many) until all are terminal or
// clock.Now() passes the deadline for each, sleeping with jittered backoff
// between rounds via clock.Sleep (timeutil.RealClock in production, a
// timeutil.MockClock in tests).
type Poller struct {
	logger Logger
	clock  timeutil.Clock
	rand   *rand.Rand
}

// NewPoller builds a Poller using the real wall clock.
func NewPoller(logger Logger) *Poller {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Poller{
		logger: logger,
		clock:  timeutil.RealClock{},
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// jitter applies +/-jitterFrac to d.
func (p *Poller) jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFrac
	offset := (p.rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// pollOnce polls job's remote, normalizes state, and updates job in place.
// It returns true if job's state changed this round.
func (p *Poller) pollOnce(ctx context.Context, job *Job) bool {
	raw, percent, fields, err := job.Remote.Poll(ctx)
	if err != nil {
		p.logger.Printf("jobmonitor: poll %s failed: %v", job.ID, err)
		return false
	}

	state, ok := NormalizeState(raw)
	if !ok {
		p.logger.Printf("jobmonitor: unrecognized status %q for job %s, treating as PENDING", raw, job.ID)
		state = StatePending
	}

	changed := state != job.State
	job.State = state

	if percent >= 0 {
		job.Progress = percent
	} else {
		job.Progress = estimateProgress(state)
	}

	if state == StateFailed {
		job.Reason = firstNonEmpty(fields)
		job.RawPayload = strings.Join(fields[:], "|")
	}

	return changed
}

func firstNonEmpty(fields [5]string) string {
	for i, v := range fields {
		if strings.TrimSpace(v) != "" {
			return errorFields[i] + ": " + v
		}
	}
	return ""
}

// Wait polls job until it reaches a terminal state or its deadline passes.
// On deadline, it attempts cancellation and marks the job TIMEOUT
// regardless of whether cancellation succeeded.
func (p *Poller) Wait(ctx context.Context, job *Job) State {
	if job.State.Terminal() {
		return job.State
	}

	interval := pollInitial
	for {
		if p.clock.Now().After(job.Deadline) {
			_ = job.Remote.Cancel(ctx)
			job.State = StateTimeout
			job.Progress = 100
			job.Reason = fmt.Sprintf("deadline exceeded: job %s did not reach a terminal state by %s", job.ID, job.Deadline.Format(time.RFC3339))
			return job.State
		}

		changed := p.pollOnce(ctx, job)
		if job.State.Terminal() {
			return job.State
		}

		if changed {
			interval = pollInitial
		} else {
			interval = time.Duration(float64(interval) * pollFactor)
			if interval > pollCap {
				interval = pollCap
			}
		}

		select {
		case <-ctx.Done():
			return job.State
		default:
		}
		p.clock.Sleep(p.jitter(interval))
	}
}

// WaitAll waits for every job to reach a terminal state or for deadline to
// pass, whichever is first. Jobs are polled concurrently within each
// settle round, with a barrier between rounds; after every round it logs
// one diag line summarizing completed/in_progress/error counts, mirroring
// qai_hub_job_monitor.py's round-by-round tally. It returns each job's
// final state keyed by ID.
func (p *Poller) WaitAll(ctx context.Context, jobs []*Job, deadline time.Time) map[string]State {
	results := make(map[string]State, len(jobs))
	pending := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if j.State.Terminal() {
			results[j.ID] = j.State
		} else {
			pending = append(pending, j)
		}
	}

	interval := pollInitial
	round := 0
	for len(pending) > 0 {
		round++

		if p.clock.Now().After(deadline) || ctxDone(ctx) {
			for _, j := range pending {
				_ = j.Remote.Cancel(ctx)
				j.State = StateTimeout
				j.Progress = 100
				j.Reason = fmt.Sprintf("deadline exceeded: job %s did not reach a terminal state by %s", j.ID, deadline.Format(time.RFC3339))
				results[j.ID] = j.State
			}
			p.logger.Printf("jobmonitor: settle round %d: completed=0 in_progress=0 errors=%d (deadline reached)", round, len(pending))
			return results
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		changedAny := false
		for _, j := range pending {
			wg.Add(1)
			go func(job *Job) {
				defer wg.Done()
				if p.pollOnce(ctx, job) {
					mu.Lock()
					changedAny = true
					mu.Unlock()
				}
			}(j)
		}
		wg.Wait()

		var completed, errored, inProgress int
		still := pending[:0]
		for _, j := range pending {
			switch {
			case j.State == StateCompleted:
				completed++
				results[j.ID] = j.State
			case j.State.Terminal():
				errored++
				results[j.ID] = j.State
			default:
				inProgress++
				still = append(still, j)
			}
		}
		pending = still
		p.logger.Printf("jobmonitor: settle round %d: completed=%d in_progress=%d errors=%d", round, completed, inProgress, errored)

		if len(pending) == 0 {
			break
		}
		if changedAny {
			interval = pollInitial
		} else {
			interval = time.Duration(float64(interval) * pollFactor)
			if interval > pollCap {
				interval = pollCap
			}
		}
		p.clock.Sleep(p.jitter(interval))
	}

	return results
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
