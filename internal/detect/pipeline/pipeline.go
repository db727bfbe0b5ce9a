// Package pipeline wires the frame source, detector, subject registry,
// fusion/risk engine, and alert trigger into the concurrency model spec.md
// §5 describes: one producer task feeding a bounded frame queue, one
// detector worker, and a fixed pool of per-subject fusion workers. Each
// fusion worker owns its subjects' risk state outright — no locking is
// needed there because a subject-id always hashes to the same worker.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/dragonx/sentinel/internal/detect/backend"
	"github.com/dragonx/sentinel/internal/detect/l1source"
	"github.com/dragonx/sentinel/internal/detect/l4risk"
	"github.com/dragonx/sentinel/internal/detect/l5alert"
	"github.com/dragonx/sentinel/internal/platform/logging"
	"github.com/dragonx/sentinel/internal/platform/metrics"
)

// unidentifiedSubject is the fusion key used when Identify finds no face
// match; a single-occupant room still gets one continuous risk history.
const unidentifiedSubject = "unidentified"

// Detector is the narrow contract pipeline needs from l3detector.Detector —
// declared here so tests can substitute a scripted double without paying
// for a real backend registry.
type Detector interface {
	Detect(frame *l1source.Frame, kind backend.DetectorKind) (backend.DetectionResult, error)
}

// SubjectIdentifier is the narrow contract pipeline needs from
// l6subject.Registry.
type SubjectIdentifier interface {
	Identify(image []byte) (string, bool, error)
}

// KeywordDetector spots a help-style keyword in one audio chunk. No speech
// model ships in this module; callers inject a binding (e.g. a local
// Whisper runner) or leave it nil to disable audio fusion.
type KeywordDetector interface {
	Detect(chunk *l1source.AudioChunk) (keyword string, ok bool)
}

// Config tunes a Pipeline. Zero values fall back to the spec.md §5
// defaults (4 fusion workers, queue depth 2).
type Config struct {
	Kind            backend.DetectorKind
	FusionWorkers   int
	FrameQueueDepth int
	AudioWindow     time.Duration // default 5s, matches l4risk.Config.AudioFusionWindow
	AlertLog        io.Writer     // optional ndjson sink, spec.md §6
}

type frameJob struct {
	frame *l1source.Frame
	audio *l1source.AudioChunk
}

type fusionJob struct {
	subjectID string
	landmarks []backend.Landmark
	bbox      [4]float32
	ts        time.Time
	audio     *l4risk.AudioEvent
}

// alertLogRecord is one line of the optional ndjson alert log (spec.md §6:
// "one JSON object per line, fields {ts, subject_id, level, cause,
// message}").
type alertLogRecord struct {
	Timestamp time.Time `json:"ts"`
	SubjectID string    `json:"subject_id"`
	Level     string    `json:"level"`
	Cause     string    `json:"cause"`
	Message   string    `json:"message"`
}

// Pipeline runs the detection runtime (C1-C6) end to end.
type Pipeline struct {
	source   l1source.Source
	detector Detector
	subjects SubjectIdentifier
	trigger  *l5alert.Trigger
	keywords KeywordDetector
	metrics  *metrics.Registry
	log      *logging.Tiers
	cfg      Config
	riskCfg  l4risk.Config

	frames chan frameJob
	fusion []chan fusionJob
	risk   []map[string]*l4risk.Subject
}

// New builds a Pipeline. metricsReg and log may be nil.
func New(source l1source.Source, detector Detector, subjects SubjectIdentifier, trigger *l5alert.Trigger, keywords KeywordDetector, riskCfg l4risk.Config, metricsReg *metrics.Registry, log *logging.Tiers, cfg Config) *Pipeline {
	if cfg.Kind == "" {
		cfg.Kind = backend.KindPose
	}
	if cfg.FusionWorkers <= 0 {
		cfg.FusionWorkers = 4
	}
	if cfg.FrameQueueDepth <= 0 {
		cfg.FrameQueueDepth = 2
	}
	if cfg.AudioWindow <= 0 {
		cfg.AudioWindow = 5 * time.Second
	}
	if log == nil {
		log = logging.Discard()
	}
	p := &Pipeline{
		source:   source,
		detector: detector,
		subjects: subjects,
		trigger:  trigger,
		keywords: keywords,
		metrics:  metricsReg,
		log:      log,
		cfg:      cfg,
		riskCfg:  riskCfg,
		frames:   make(chan frameJob, cfg.FrameQueueDepth),
		fusion:   make([]chan fusionJob, cfg.FusionWorkers),
		risk:     make([]map[string]*l4risk.Subject, cfg.FusionWorkers),
	}
	for i := range p.fusion {
		p.fusion[i] = make(chan fusionJob, cfg.FrameQueueDepth)
		p.risk[i] = make(map[string]*l4risk.Subject)
	}
	return p
}

// Run starts the producer, detector worker, and fusion workers
// concurrently, and blocks until the source is exhausted or ctx is
// cancelled. Each stage closes its downstream channel(s) when it exits, so
// shutdown drains in order: producer -> detector -> fusion workers.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(p.frames)
		p.produce(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			for _, ch := range p.fusion {
				close(ch)
			}
		}()
		p.detectWorker(ctx)
	}()

	for i := range p.fusion {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.fusionWorker(ctx, i)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// produce pulls frames from the source and pushes them onto the bounded
// queue, dropping the oldest entry on overflow (spec.md §5: "latency >
// throughput"). An audio-only result is held and attached to the next
// frame that carries no audio of its own.
func (p *Pipeline) produce(ctx context.Context) {
	var pendingAudio *l1source.AudioChunk
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, audio, err := p.source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Opsf("pipeline: source.Next: %v", err)
			}
			return
		}
		if frame == nil {
			if audio != nil {
				pendingAudio = audio
			}
			continue
		}
		if audio == nil {
			audio = pendingAudio
		}
		pendingAudio = nil
		p.enqueueFrame(ctx, frameJob{frame: frame, audio: audio})
	}
}

func (p *Pipeline) enqueueFrame(ctx context.Context, job frameJob) {
	select {
	case p.frames <- job:
		return
	case <-ctx.Done():
		return
	default:
	}

	select {
	case <-p.frames:
		if p.metrics != nil {
			p.metrics.FramesDropped.Inc()
		}
	default:
	}

	select {
	case p.frames <- job:
	case <-ctx.Done():
	}
}

// detectWorker is the single per-process detector task (spec.md §5: "one
// worker task per detector instance; detectors are single-threaded
// internally").
func (p *Pipeline) detectWorker(ctx context.Context) {
	var pendingAudio *l1source.AudioChunk
	for job := range p.frames {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if job.audio != nil {
			pendingAudio = job.audio
		}

		result, err := p.detector.Detect(job.frame, p.cfg.Kind)
		if err != nil {
			p.log.Opsf("pipeline: detect: %v", err)
			continue
		}
		if len(result.Subjects) == 0 {
			continue
		}
		primary := result.Subjects[0]
		for _, s := range result.Subjects[1:] {
			if s.Confidence > primary.Confidence {
				primary = s
			}
		}

		subjectID, err := p.identify(job.frame.Image)
		if err != nil {
			p.log.Diagf("pipeline: identify: %v", err)
			subjectID = unidentifiedSubject
		}

		var audioEvent *l4risk.AudioEvent
		if p.keywords != nil && pendingAudio != nil {
			if withinAudioWindow(pendingAudio.Timestamp, job.frame.Timestamp, p.cfg.AudioWindow) {
				if keyword, ok := p.keywords.Detect(pendingAudio); ok {
					audioEvent = &l4risk.AudioEvent{Timestamp: pendingAudio.Timestamp, Keyword: keyword}
				}
			}
			pendingAudio = nil
		}

		fj := fusionJob{
			subjectID: subjectID,
			landmarks: primary.Landmarks,
			bbox:      primary.BoundingBox,
			ts:        job.frame.Timestamp,
			audio:     audioEvent,
		}
		p.routeFusion(ctx, fj)
	}
}

func withinAudioWindow(audioTS, frameTS time.Time, window time.Duration) bool {
	d := frameTS.Sub(audioTS)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func (p *Pipeline) identify(image []byte) (string, error) {
	id, matched, err := p.subjects.Identify(image)
	if err != nil {
		return "", err
	}
	if !matched {
		return unidentifiedSubject, nil
	}
	return id, nil
}

func (p *Pipeline) routeFusion(ctx context.Context, job fusionJob) {
	worker := hashSubject(job.subjectID, len(p.fusion))
	select {
	case p.fusion[worker] <- job:
	case <-ctx.Done():
	}
}

func hashSubject(id string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}

// fusionWorker owns the risk state for every subject hashed to it — single
// goroutine ownership per spec.md §4.4/§5, so no lock guards p.risk[idx].
func (p *Pipeline) fusionWorker(ctx context.Context, idx int) {
	subjects := p.risk[idx]
	for job := range p.fusion[idx] {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subject, ok := subjects[job.subjectID]
		if !ok {
			subject = l4risk.NewSubject(job.subjectID, p.riskCfg)
			subjects[job.subjectID] = subject
		}

		risk, err := subject.FuseSample(p.cfg.Kind, job.landmarks, job.bbox, job.ts, job.audio)
		if err != nil {
			p.log.Diagf("pipeline: fuse sample for %s: %v", job.subjectID, err)
			continue
		}

		event, fire := p.trigger.Evaluate(risk)
		if !fire {
			continue
		}
		if p.metrics != nil {
			p.metrics.AlertsEmitted.WithLabelValues(string(event.Severity)).Inc()
		}
		p.writeAlertLog(event)
	}
}

func (p *Pipeline) writeAlertLog(event l5alert.AlertEvent) {
	if p.cfg.AlertLog == nil {
		return
	}
	cause := "none"
	switch {
	case event.CauseFall && event.CauseAudioHelp:
		cause = "fall+audio-help"
	case event.CauseFall:
		cause = "fall"
	case event.CauseAudioHelp:
		cause = "audio-help"
	}
	record := alertLogRecord{
		Timestamp: event.Timestamp,
		SubjectID: event.SubjectID,
		Level:     string(event.Severity),
		Cause:     cause,
		Message:   event.Message,
	}
	line, err := json.Marshal(record)
	if err != nil {
		p.log.Opsf("pipeline: marshal alert log record: %v", err)
		return
	}
	line = append(line, '\n')
	if _, err := p.cfg.AlertLog.Write(line); err != nil {
		p.log.Opsf("pipeline: write alert log: %v", err)
	}
}
