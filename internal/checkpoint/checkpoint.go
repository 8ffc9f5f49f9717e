// Package checkpoint records the lifecycle progress of plugin runs so that an
// interrupted or failed run can be inspected after the fact.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirName is the checkpoint directory created inside a database root.
const DirName = ".checkpoints"

const stateVersion = "1.0"

// Status of a run or of one of its tasks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is the checkpoint of one run.
type State struct {
	Version   string            `json:"version"`
	RunID     string            `json:"run_id"`
	Plugin    string            `json:"plugin"`
	Name      string            `json:"name,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Status    Status            `json:"status"`
	Tasks     []Task            `json:"tasks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Task is one lifecycle phase of a run.
type Task struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
	Artifacts   []string  `json:"artifacts,omitempty"`
}

// Duration of the task, or zero while it has not completed.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// NewState starts a checkpoint for runID with the given tasks pending.
func NewState(runID, plugin string, tasks ...string) *State {
	now := time.Now()
	s := &State{
		Version:   stateVersion,
		RunID:     runID,
		Plugin:    plugin,
		StartedAt: now,
		UpdatedAt: now,
		Status:    StatusRunning,
		Metadata:  make(map[string]string),
	}
	for _, id := range tasks {
		s.Tasks = append(s.Tasks, Task{ID: id, Status: StatusPending})
	}
	return s
}

// Task returns the task with the given ID.
func (s *State) Task(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// UpdateTask moves a task to status, adding it when unknown. A failed task
// fails the run; the run completes once every task has completed.
func (s *State) UpdateTask(id string, status Status, err error) {
	now := time.Now()
	i := s.indexOf(id)
	if i < 0 {
		s.Tasks = append(s.Tasks, Task{ID: id, Status: StatusPending})
		i = len(s.Tasks) - 1
	}
	task := &s.Tasks[i]

	if status == StatusRunning && task.StartedAt.IsZero() {
		task.StartedAt = now
	}
	if status.Terminal() {
		task.CompletedAt = now
	}
	task.Status = status
	if err != nil {
		task.Error = err.Error()
	}

	switch {
	case status == StatusFailed:
		s.Status = StatusFailed
	case s.allCompleted():
		s.Status = StatusCompleted
	}
	s.UpdatedAt = now
}

// AddArtifact attaches a file to a task.
func (s *State) AddArtifact(id, path string) {
	if i := s.indexOf(id); i >= 0 {
		s.Tasks[i].Artifacts = append(s.Tasks[i].Artifacts, path)
		s.UpdatedAt = time.Now()
	}
}

// Current returns the first task that has not completed.
func (s *State) Current() (Task, bool) {
	for _, t := range s.Tasks {
		if t.Status != StatusCompleted {
			return t, true
		}
	}
	return Task{}, false
}

// Progress returns the completed fraction of tasks (0.0 to 1.0).
func (s *State) Progress() float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range s.Tasks {
		if t.Status == StatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(s.Tasks))
}

// SetMetadata sets a metadata key-value pair
func (s *State) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
	s.UpdatedAt = time.Now()
}

// GetMetadata retrieves a metadata value
func (s *State) GetMetadata(key string) (string, bool) {
	value, ok := s.Metadata[key]
	return value, ok
}

func (s *State) indexOf(id string) int {
	for i, t := range s.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) allCompleted() bool {
	for _, t := range s.Tasks {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return len(s.Tasks) > 0
}

// Manager handles checkpoint persistence
type Manager struct {
	dir string
}

// NewManager stores checkpoints in dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// ForDatabase returns the manager for the checkpoints of a database root.
func ForDatabase(root string) *Manager {
	return NewManager(filepath.Join(root, DirName))
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.dir, runID+".json")
}

// Save persists the checkpoint state to disk
func (m *Manager) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("checkpoint state is nil")
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}

	// Write then rename so a reader never sees a half-written checkpoint.
	tmp := m.path(state.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, m.path(state.RunID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// Load reads the checkpoint state from disk
func (m *Manager) Load(runID string) (*State, error) {
	data, err := os.ReadFile(m.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint state: %w", err)
	}
	return &state, nil
}

// Exists checks if a checkpoint exists for the run
func (m *Manager) Exists(runID string) bool {
	_, err := os.Stat(m.path(runID))
	return err == nil
}

// Delete removes a checkpoint file
func (m *Manager) Delete(runID string) error {
	if err := os.Remove(m.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns the run IDs that have a checkpoint, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && filepath.Ext(name) == ".json" {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune deletes every checkpoint whose run completed.
func (m *Manager) Prune() (int, error) {
	ids, err := m.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		s, err := m.Load(id)
		if err != nil || s.Status != StatusCompleted {
			continue
		}
		if err := m.Delete(id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
