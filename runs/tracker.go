// Package runs tracks in-flight and recently finished pipeline runs and
// bounds how many execute at once.
package runs

import (
	"sort"
	"sync"
	"time"

	"hlsworker/pipeline"
)

// DefaultHistory is how many finished runs the tracker remembers.
const DefaultHistory = 200

// RunStatus is the live view of one run.
type RunStatus struct {
	RunID     string            `json:"run_id"`
	Object    string            `json:"object"`
	State     pipeline.State    `json:"state"`
	Outcome   *pipeline.Outcome `json:"outcome,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Active reports whether the run has not reached a terminal state.
func (s RunStatus) Active() bool {
	return s.State != pipeline.StateDone && s.State != pipeline.StateAborted
}

// Tracker implements pipeline.StateObserver. Filtered runs are forgotten as
// soon as they finish so bucket noise does not push real runs out.
type Tracker struct {
	mu       sync.RWMutex
	runs     map[string]*RunStatus
	finished []string // run ids, oldest first
	history  int
}

func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{runs: make(map[string]*RunStatus), history: history}
}

// Observe records that runID entered state.
func (t *Tracker) Observe(runID, object string, state pipeline.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.runs[runID]
	if !ok {
		s = &RunStatus{RunID: runID, Object: object}
		t.runs[runID] = s
	}
	s.State = state
	s.UpdatedAt = time.Now()
}

// Finish attaches the final outcome of a run.
func (t *Tracker) Finish(out pipeline.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if out.Reason == pipeline.ReasonFiltered {
		delete(t.runs, out.RunID)
		return
	}

	s, ok := t.runs[out.RunID]
	if !ok {
		s = &RunStatus{RunID: out.RunID, Object: out.Object}
		t.runs[out.RunID] = s
	}
	s.State = out.State
	s.Outcome = &out
	s.UpdatedAt = time.Now()

	t.finished = append(t.finished, out.RunID)
	for len(t.finished) > t.history {
		delete(t.runs, t.finished[0])
		t.finished = t.finished[1:]
	}
}

// Get returns a copy of the status of runID.
func (t *Tracker) Get(runID string) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *s, true
}

// List returns all known runs, most recently updated first.
func (t *Tracker) List() []RunStatus {
	t.mu.RLock()
	list := make([]RunStatus, 0, len(t.runs))
	for _, s := range t.runs {
		list = append(list, *s)
	}
	t.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list
}

// ActiveCount returns the number of runs still in progress.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.runs {
		if s.Active() {
			n++
		}
	}
	return n
}
