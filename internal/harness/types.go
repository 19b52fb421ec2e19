package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int    `json:"step"`
	Activity string `json:"activity"`
	Bounty   string `json:"bounty,omitempty"`
	Origin   string `json:"origin"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	Status string `json:"status,omitempty"`
	Paid   bool   `json:"paid,omitempty"`

	// Notices lists "recipient:activity" for every notice sent while the
	// step and its replay ran.
	Notices []string `json:"notices,omitempty"`

	// Replayed counts changes the reconciler replayed after the step.
	Replayed int `json:"replayed,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// IDs maps scenario labels to bounty ids.
	IDs map[string]string `json:"ids,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		IDs:    map[string]string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
