package models

import "time"

// Snapshot is the durable form of long-term memory and recent experience.
type Snapshot struct {
	LongTermMemory    map[string]any   `json:"longTermMemory"`
	RecentExperiences []map[string]any `json:"recentExperiences"`
	// Timestamp is the save time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// SavedAt returns the snapshot timestamp as a time.Time.
func (s Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// DecisionContext is the read-only input to action selection for one loop
// iteration. Build it with NewDecisionContext so slices and maps are copied.
type DecisionContext struct {
	State             LoopState
	Stage             Stage
	Project           string
	Files             []string
	IsVersioned       bool
	RecentExperiences []Experience
	Candidates        []ActionDescriptor
	LongTermMemory    map[string]any
	Metrics           Metrics
	Recommendation    []string
}

// NewDecisionContext returns a copy of dc that shares no mutable state with
// the caller.
func NewDecisionContext(dc DecisionContext) DecisionContext {
	out := dc
	out.Files = append([]string(nil), dc.Files...)
	out.RecentExperiences = append([]Experience(nil), dc.RecentExperiences...)
	out.Candidates = append([]ActionDescriptor(nil), dc.Candidates...)
	out.Recommendation = append([]string(nil), dc.Recommendation...)
	if dc.LongTermMemory != nil {
		out.LongTermMemory = make(map[string]any, len(dc.LongTermMemory))
		for k, v := range dc.LongTermMemory {
			out.LongTermMemory[k] = v
		}
	}
	return out
}

// WithCandidates returns a copy of dc with the candidate list replaced.
func (dc DecisionContext) WithCandidates(c []ActionDescriptor) DecisionContext {
	out := NewDecisionContext(dc)
	out.Candidates = append([]ActionDescriptor(nil), c...)
	return out
}
