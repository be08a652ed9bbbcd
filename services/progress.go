package services

import (
	"sync"
	"time"

	"github.com/tschoem/rental-manager-sub000/models"
)

// ProgressTracker is the process-wide store of in-flight import progress,
// keyed by subject id and polled by the admin UI. One record exists per
// subject; records for different subjects never interfere.
type ProgressTracker struct {
	mu      sync.RWMutex
	records map[string]*models.ImportProgress
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{records: make(map[string]*models.ImportProgress)}
}

// Update upserts the subject's record: stage, message, and percent are
// replaced, logLine (when non-empty) is appended, and errorMessage (when
// non-empty) becomes the user-facing error. A negative percent keeps the
// record's current value, so error transitions don't rewind the bar.
func (t *ProgressTracker) Update(subjectID string, stage models.ImportStage, message string, percent int, logLine, errorMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[subjectID]
	if !ok {
		rec = &models.ImportProgress{}
		t.records[subjectID] = rec
	}

	rec.Stage = stage
	rec.Message = message
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		rec.Percent = percent
	}
	if logLine != "" {
		rec.Log = append(rec.Log, logLine)
	}
	if errorMessage != "" {
		rec.ErrorMessage = errorMessage
	}
	rec.UpdatedAt = time.Now()
}

// MarkComplete sets the completed flag without altering the stage, so the
// UI can distinguish a finished error from a finished success.
func (t *ProgressTracker) MarkComplete(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[subjectID]; ok {
		rec.Completed = true
		rec.UpdatedAt = time.Now()
	}
}

// Get returns a snapshot of the subject's progress. The second return is
// false when no import has been recorded for the subject.
func (t *ProgressTracker) Get(subjectID string) (models.ImportProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[subjectID]
	if !ok {
		return models.ImportProgress{}, false
	}

	snapshot := *rec
	snapshot.Log = append([]string(nil), rec.Log...)
	return snapshot, true
}

// Forget evicts a record once its completion has been observed.
func (t *ProgressTracker) Forget(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, subjectID)
}
