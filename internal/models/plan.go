package models

// PlanEntry is one clip occurrence inside a clip plan.
type PlanEntry struct {
	ClipID     string `json:"clip_id"`
	SourcePath string `json:"source_path"`
	DurationMS int64  `json:"duration_ms"`
}

// ClipPlan is the ephemeral output of the planner: an ordered clip sequence
// whose core fills a requested speech window, optionally flanked by enter and
// exit transitions.
type ClipPlan struct {
	Entries []PlanEntry `json:"entries"`

	// TotalDurationMS is the sum of all entry durations, transitions included.
	TotalDurationMS int64 `json:"total_duration_ms"`
	// TalkDurationMS is the core speech window excluding transitions.
	TalkDurationMS int64 `json:"talk_duration_ms"`
	// EnterDurationMS and ExitDurationMS are zero when no transition was found.
	EnterDurationMS int64 `json:"enter_duration_ms"`
	ExitDurationMS  int64 `json:"exit_duration_ms"`
}

// MotionIDs returns the ordered clip ids of the plan.
func (p *ClipPlan) MotionIDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.ClipID
	}
	return ids
}

// Paths returns the ordered source paths of the plan.
func (p *ClipPlan) Paths() []string {
	paths := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		paths[i] = e.SourcePath
	}
	return paths
}
