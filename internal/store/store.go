// Package store keeps the full task mapping (date key -> ordered bucket of
// tasks) in memory and flushes it to a single JSON file synchronously after
// every mutation. Last write wins; there is no write-ahead log.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// ErrNotFound is returned when no task with the given ID exists in the
// addressed bucket. The store is left unmodified.
var ErrNotFound = errors.New("store: task not found")

// CorruptError reports an unreadable tasks file. The caller decides whether
// to reset the file or abort; the store never silently drops data.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return "store: corrupt tasks file " + e.Path + ": " + e.Err.Error()
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Entry pairs a task with the bucket it should land in. Used for batch
// inserts produced by recurrence expansion.
type Entry struct {
	DateKey string
	Task    model.Task
}

// Store owns the in-memory mapping and its backing file. Handlers run on
// concurrent goroutines, so mutations are serialized by a mutex; the
// deadline sweeper never touches this instance and instead re-reads the
// file each cycle via Load.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks map[string][]model.Task
}

// Open loads the store from path. A missing file yields an empty store;
// malformed content yields a *CorruptError. When loading migrated legacy
// content (missing IDs, legacy status labels), the fixed mapping is written
// back immediately so assigned IDs stay stable across restarts.
func Open(path string) (*Store, error) {
	tasks, migrated, err := load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, tasks: tasks}
	if migrated {
		if err := s.Save(); err != nil {
			return nil, err
		}
		appLog.Info("persisted migrated tasks file", "file", path)
	}
	return s, nil
}

// Load reads and migrates the task mapping from path without retaining any
// handle on the file and without writing anything back. A missing file is
// an empty mapping, not an error.
func Load(path string) (map[string][]model.Task, error) {
	tasks, _, err := load(path)
	return tasks, err
}

func load(path string) (map[string][]model.Task, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string][]model.Task{}, false, nil
		}
		return nil, false, err
	}

	var tasks map[string][]model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, false, &CorruptError{Path: path, Err: err}
	}
	if tasks == nil {
		tasks = map[string][]model.Task{}
	}

	migrated := migrate(path, tasks)
	return tasks, migrated, nil
}

// migrate normalizes legacy status labels and assigns IDs to tasks written
// by versions that had none, reporting whether anything changed. Each kind
// of fix is logged once per load.
func migrate(path string, tasks map[string][]model.Task) bool {
	statusFixes := 0
	idFixes := 0

	for key, bucket := range tasks {
		for i := range bucket {
			status, wasLegacy, err := model.NormalizeStatus(string(bucket[i].Status))
			if err == nil {
				if wasLegacy {
					statusFixes++
				}
				bucket[i].Status = status
			}
			if bucket[i].ID == "" {
				bucket[i].ID = model.NewID()
				idFixes++
			}
		}
		tasks[key] = bucket
	}

	if statusFixes > 0 {
		appLog.Warn("migrated legacy status labels to canonical form",
			"file", path, "count", statusFixes)
	}
	if idFixes > 0 {
		appLog.Warn("assigned ids to tasks persisted without one",
			"file", path, "count", idFixes)
	}
	return statusFixes > 0 || idFixes > 0
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Add validates the task, assigns an ID if it has none, appends it to the
// bucket for dateKey (creating the bucket) and saves. The stored task,
// including its ID, is returned.
func (s *Store) Add(dateKey string, t model.Task) (model.Task, error) {
	if _, err := model.ParseDateKey(dateKey, time.UTC); err != nil {
		return model.Task{}, err
	}
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[dateKey] = append(s.tasks[dateKey], t)
	if err := s.save(); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// AddBatch inserts all entries with a single save at the end. Every task is
// validated up front so a rejected entry leaves the store untouched.
func (s *Store) AddBatch(entries []Entry) error {
	for _, e := range entries {
		if _, err := model.ParseDateKey(e.DateKey, time.UTC); err != nil {
			return err
		}
		if err := e.Task.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		t := e.Task
		if t.ID == "" {
			t.ID = model.NewID()
		}
		s.tasks[e.DateKey] = append(s.tasks[e.DateKey], t)
	}
	return s.save()
}

// Edit replaces the task with the given ID in the dateKey bucket. The ID is
// preserved regardless of what the replacement carries.
func (s *Store) Edit(dateKey, id string, t model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.tasks[dateKey]
	for i := range bucket {
		if bucket[i].ID == id {
			t.ID = id
			bucket[i] = t
			return s.save()
		}
	}
	return ErrNotFound
}

// Remove deletes the task with the given ID from the dateKey bucket. The
// bucket itself is deleted when it becomes empty, so a present key always
// maps to a non-empty bucket.
func (s *Store) Remove(dateKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.removeLocked(dateKey, id); err != nil {
		return err
	}
	return s.save()
}

// removeLocked extracts a task by ID. Caller holds s.mu.
func (s *Store) removeLocked(dateKey, id string) (model.Task, error) {
	bucket := s.tasks[dateKey]
	for i := range bucket {
		if bucket[i].ID == id {
			t := bucket[i]
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(s.tasks, dateKey)
			} else {
				s.tasks[dateKey] = bucket
			}
			return t, nil
		}
	}
	return model.Task{}, ErrNotFound
}

// Move transfers the task with the given ID from one bucket to another in a
// single in-memory mutation, preserving all fields. The total task count is
// invariant under Move.
func (s *Store) Move(fromKey, id, toKey string) error {
	if _, err := model.ParseDateKey(toKey, time.UTC); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.removeLocked(fromKey, id)
	if err != nil {
		return err
	}
	s.tasks[toKey] = append(s.tasks[toKey], t)
	return s.save()
}

// List returns a copy of the bucket for dateKey; an absent key yields an
// empty slice.
func (s *Store) List(dateKey string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.tasks[dateKey]
	out := make([]model.Task, len(bucket))
	copy(out, bucket)
	return out
}

// Snapshot returns a deep copy of the whole mapping for re-render.
func (s *Store) Snapshot() map[string][]model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]model.Task, len(s.tasks))
	for key, bucket := range s.tasks {
		cp := make([]model.Task, len(bucket))
		copy(cp, bucket)
		out[key] = cp
	}
	return out
}

// Count returns the total number of tasks across all buckets.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, bucket := range s.tasks {
		n += len(bucket)
	}
	return n
}

// Save flushes the current mapping to disk. Mutating operations already
// save synchronously; Open uses this to persist load-time migrations.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes the full mapping atomically (temp file + rename, 0600).
// Caller holds s.mu.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// encoding/json sorts map keys; indent so the file stays diffable and
	// readable by the person whose tasks these are.
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskcal-tasks-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
