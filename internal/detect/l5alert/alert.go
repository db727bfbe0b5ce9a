// Package l5alert debounces RiskAssessments into AlertEvents under a
// per-subject cooldown, and holds them in a bounded ring with an optional
// non-blocking notification channel for a durable sink.
package l5alert

import (
	"sync"
	"time"

	"github.com/dragonx/sentinel/internal/detect/l4risk"
	"github.com/dragonx/sentinel/internal/platform/metrics"
)

// Confidence values for each alert cause combination, per spec.md §4.5.
const (
	ConfidenceCombined   = 0.95
	ConfidenceVisualOnly = 0.75
	ConfidenceAudioOnly  = 0.60
)

// AlertEvent is one emitted alert, append-only in the ring.
type AlertEvent struct {
	Timestamp      time.Time
	SubjectID      string
	CauseFall      bool
	CauseAudioHelp bool
	Confidence     float64
	Message        string
	Severity       l4risk.AlertLevel
}

type subjectState struct {
	activeLevel l4risk.AlertLevel
	lastAlertAt time.Time
	active      bool
}

// Trigger enforces the cooldown/promotion policy across subjects and owns
// the bounded alert ring. It is safe for concurrent use by multiple
// fusion workers, one per subject, as long as each worker only ever calls
// Evaluate for its own subject-id.
type Trigger struct {
	cooldown time.Duration
	metrics  *metrics.Registry

	mu       sync.Mutex
	subjects map[string]*subjectState

	ringMu sync.Mutex
	ring   []AlertEvent
	cap    int

	notify chan AlertEvent
}

// NewTrigger builds a Trigger with the given cooldown and ring capacity
// (spec default: 3s cooldown, capacity 100). metricsReg may be nil.
func NewTrigger(cooldown time.Duration, ringCapacity int, metricsReg *metrics.Registry) *Trigger {
	if ringCapacity <= 0 {
		ringCapacity = 100
	}
	return &Trigger{
		cooldown: cooldown,
		metrics:  metricsReg,
		subjects: make(map[string]*subjectState),
		ring:     make([]AlertEvent, 0, ringCapacity),
		cap:      ringCapacity,
		notify:   make(chan AlertEvent, ringCapacity),
	}
}

// Events returns the notification channel. Reads are best-effort: a full
// channel drops the newest notification (the ring itself, read via
// Snapshot, never loses an event to notification backpressure).
func (t *Trigger) Events() <-chan AlertEvent {
	return t.notify
}

// Evaluate applies the cooldown/promotion policy to one RiskAssessment and
// returns the AlertEvent to emit, or ok=false if the assessment should be
// suppressed.
func (t *Trigger) Evaluate(risk l4risk.RiskAssessment) (AlertEvent, bool) {
	t.mu.Lock()
	st, ok := t.subjects[risk.SubjectID]
	if !ok {
		st = &subjectState{}
		t.subjects[risk.SubjectID] = st
	}

	wantsAlert := risk.AlertLevel != l4risk.AlertNone
	if !wantsAlert {
		t.mu.Unlock()
		return AlertEvent{}, false
	}

	inCooldown := st.active && risk.Timestamp.Sub(st.lastAlertAt) < t.cooldown
	if inCooldown {
		// A new would-be alert during cooldown may still promote the
		// active alert's severity without resetting the cooldown clock.
		if levelRank(risk.AlertLevel) > levelRank(st.activeLevel) {
			st.activeLevel = risk.AlertLevel
			t.mu.Unlock()
			event := buildEvent(risk, st.activeLevel)
			t.append(event)
			return event, true
		}
		t.mu.Unlock()
		return AlertEvent{}, false
	}

	st.active = true
	st.activeLevel = risk.AlertLevel
	st.lastAlertAt = risk.Timestamp
	t.mu.Unlock()

	event := buildEvent(risk, risk.AlertLevel)
	t.append(event)
	return event, true
}

func buildEvent(risk l4risk.RiskAssessment, severity l4risk.AlertLevel) AlertEvent {
	event := AlertEvent{
		Timestamp:      risk.Timestamp,
		SubjectID:      risk.SubjectID,
		CauseFall:      risk.CauseFall,
		CauseAudioHelp: risk.CauseAudioHelp,
		Severity:       severity,
	}
	switch {
	case event.CauseFall && event.CauseAudioHelp:
		event.Confidence = ConfidenceCombined
		event.Message = "fall detected with audio help request"
	case event.CauseFall:
		event.Confidence = ConfidenceVisualOnly
		event.Message = "fall detected"
	case event.CauseAudioHelp:
		event.Confidence = ConfidenceAudioOnly
		event.Message = "audio help request detected"
	default:
		event.Confidence = ConfidenceVisualOnly
		event.Message = "elevated fall risk"
	}
	return event
}

func levelRank(l l4risk.AlertLevel) int {
	switch l {
	case l4risk.AlertNone:
		return 0
	case l4risk.AlertLow:
		return 1
	case l4risk.AlertMedium:
		return 2
	case l4risk.AlertHigh:
		return 3
	case l4risk.AlertCritical:
		return 4
	default:
		return 0
	}
}

// append pushes event onto the ring, evicting the oldest entry if at
// capacity, and best-effort-notifies the channel.
func (t *Trigger) append(event AlertEvent) {
	t.ringMu.Lock()
	if len(t.ring) >= t.cap {
		t.ring = t.ring[1:]
	}
	t.ring = append(t.ring, event)
	t.ringMu.Unlock()

	select {
	case t.notify <- event:
	default:
		if t.metrics != nil {
			t.metrics.AlertsDropped.Inc()
		}
	}
}

// Snapshot returns a defensive copy of the ring contents, oldest first.
func (t *Trigger) Snapshot() []AlertEvent {
	t.ringMu.Lock()
	defer t.ringMu.Unlock()
	out := make([]AlertEvent, len(t.ring))
	copy(out, t.ring)
	return out
}
