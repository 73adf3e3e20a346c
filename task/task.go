// Package task keeps the progress records of running translation tasks so
// that a caller can poll them while the pipeline works in the background.
package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further updates are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is the progress record of one translation run.
type Task struct {
	ID                string    `json:"id"`
	Status            Status    `json:"status"`
	CurrentFile       string    `json:"current_file"`
	TotalFiles        int       `json:"total_files"`
	ProcessedFiles    int       `json:"processed_files"`
	TotalEntries      int       `json:"total_entries"`
	CurrentEntry      int       `json:"current_entry"`
	EntriesTranslated int       `json:"entries_translated"`
	Percent           float64   `json:"percent"`
	AvgSpeed          float64   `json:"avg_speed"`
	CreatedAt         time.Time `json:"created_at"`
	StartTime         time.Time `json:"start_time,omitzero"`
	Error             string    `json:"error,omitempty"`
	OutputPath        string    `json:"output_path,omitempty"`
}

// EntryProcessed counts one processed entry, successful or not, and
// recomputes the average speed in entries per second.
func (t *Task) EntryProcessed(now time.Time) {
	t.EntriesTranslated++
	t.CurrentEntry++
	if t.StartTime.IsZero() {
		return
	}
	if elapsed := now.Sub(t.StartTime).Seconds(); elapsed > 0 {
		t.AvgSpeed = float64(t.EntriesTranslated) / elapsed
	}
}

// Store is an in-memory task registry, safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task), now: time.Now}
}

// Create registers a new pending task and returns its ID.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = &Task{ID: id, Status: StatusPending, CreatedAt: s.now()}
	return id
}

// Update applies fn to the task under the store lock. Unknown IDs and
// tasks already in a terminal state are left untouched; the return value
// reports whether fn ran.
func (s *Store) Update(id string, fn func(t *Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return false
	}
	fn(t)
	t.ID = id
	return true
}

// Get returns a copy of the task, or false if the ID is unknown.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks, oldest first.
func (s *Store) List() []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}
