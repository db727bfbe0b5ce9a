// Package l6subject identifies subjects by face embedding and persists
// each subject's id, name and embedding. Profile and Version are kept in
// memory only: they are not written to the store, and subjects loaded by
// Open have a nil Profile and Version 0. Identify takes a read lock, Register/Delete take a
// write lock; the store is loaded at startup and written through on
// every mutation (spec.md §4.6, §5).
package l6subject

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Kagami/go-face"

	"github.com/dragonx/sentinel/internal/platform/store"
)

// ErrNoFace is returned by Register or Identify when no face is found in
// the supplied image.
var ErrNoFace = errors.New("l6subject: no face detected")

// Subject is one registered identity.
type Subject struct {
	ID         string
	Name       string
	Embedding  face.Descriptor
	Profile    map[string]string
	Version    int
	LastSeenAt time.Time
}

// Registry identifies subjects by face embedding and persists each
// subject's id, name and embedding (not its Profile or Version) to a
// durable store. One Registry owns the reader-writer lock spec.md §5
// requires around the shared subject map.
type Registry struct {
	rec   *face.Recognizer
	db    *store.DB
	match float64

	mu       sync.RWMutex
	subjects map[string]*Subject
}

// Open loads the recognizer model from modelDir (go-face expects
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat there), opens the durable store at
// dbPath, and hydrates the in-memory subject map from it.
func Open(modelDir, dbPath string, matchThreshold float64) (*Registry, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("l6subject: load recognizer models: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		rec.Close()
		return nil, err
	}

	r := &Registry{rec: rec, db: db, match: matchThreshold, subjects: make(map[string]*Subject)}
	if err := r.hydrate(); err != nil {
		rec.Close()
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) hydrate() error {
	rows, err := r.db.Query(`SELECT subject_id, label, embedding, updated_at FROM subjects`)
	if err != nil {
		return fmt.Errorf("l6subject: hydrate: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, label string
		var blob []byte
		var updatedAt int64
		if err := rows.Scan(&id, &label, &blob, &updatedAt); err != nil {
			return fmt.Errorf("l6subject: hydrate scan: %w", err)
		}
		descriptor, err := decodeDescriptor(blob)
		if err != nil {
			return fmt.Errorf("l6subject: hydrate subject %s: %w", id, err)
		}
		r.subjects[id] = &Subject{
			ID:         id,
			Name:       label,
			Embedding:  descriptor,
			LastSeenAt: time.Unix(updatedAt, 0),
		}
	}
	return rows.Err()
}

// Register extracts the first face's embedding from image and persists it
// under id, replacing any existing registration and incrementing its
// in-memory version counter (which starts again from 0 for subjects
// loaded by Open). profile is kept in memory only. Returns ErrNoFace if no
// face is detected.
func (r *Registry) Register(id, name string, image []byte, profile map[string]string) error {
	faces, err := r.rec.Recognize(image)
	if err != nil {
		return fmt.Errorf("l6subject: recognize: %w", err)
	}
	if len(faces) == 0 {
		return ErrNoFace
	}
	descriptor := faces[0].Descriptor

	r.mu.Lock()
	defer r.mu.Unlock()

	version := 1
	if existing, ok := r.subjects[id]; ok {
		version = existing.Version + 1
	}
	now := time.Now()
	subject := &Subject{ID: id, Name: name, Embedding: descriptor, Profile: profile, Version: version, LastSeenAt: now}

	if err := r.writeThrough(subject); err != nil {
		return err
	}
	r.subjects[id] = subject
	return nil
}

// Identify extracts the first face's embedding from frame and returns the
// closest registered subject-id within the configured threshold. Ties are
// broken by smallest distance (the loop below naturally keeps the first
// strictly-smaller candidate).
func (r *Registry) Identify(image []byte) (string, bool, error) {
	faces, err := r.rec.Recognize(image)
	if err != nil {
		return "", false, fmt.Errorf("l6subject: recognize: %w", err)
	}
	if len(faces) == 0 {
		return "", false, ErrNoFace
	}
	probe := faces[0].Descriptor

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestID := ""
	bestDist := math.MaxFloat64
	for id, s := range r.subjects {
		d := euclideanDistance(probe, s.Embedding)
		if d < bestDist {
			bestDist = d
			bestID = id
		}
	}
	if bestID == "" || bestDist >= r.match {
		return "", false, nil
	}
	return bestID, true, nil
}

// Delete removes a subject from the registry and the durable store.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec(`DELETE FROM subjects WHERE subject_id = ?`, id); err != nil {
		return fmt.Errorf("l6subject: delete %s: %w", id, err)
	}
	delete(r.subjects, id)
	return nil
}

// List returns a defensive copy of every registered subject.
func (r *Registry) List() []Subject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		out = append(out, *s)
	}
	return out
}

// Close releases the recognizer and store handles.
func (r *Registry) Close() error {
	r.rec.Close()
	return r.db.Close()
}

// writeThrough persists subject synchronously; caller holds r.mu.
func (r *Registry) writeThrough(s *Subject) error {
	blob := encodeDescriptor(s.Embedding)
	_, err := r.db.Exec(`
		INSERT INTO subjects (subject_id, label, embedding, enrolled_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			label = excluded.label,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, s.ID, s.Name, blob, s.LastSeenAt.Unix(), s.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("l6subject: write-through %s: %w", s.ID, err)
	}
	return nil
}

func euclideanDistance(a, b face.Descriptor) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
