package harness

// Step is one executed flow step as recorded in the run log.
type Step struct {
	Seq    int            `json:"seq"`
	Op     string         `json:"op"`
	Result map[string]any `json:"result"`
}

// MatchState is a match as it stands at the end of a run.
type MatchState struct {
	ID     string `json:"id"`
	Guest  string `json:"guest"`
	Host   string `json:"host"`
	Status string `json:"status"`
	NoShow bool   `json:"no_show,omitempty"`
}

// FinalState is the store snapshot taken after the flow.
type FinalState struct {
	Matches       []MatchState   `json:"matches"`
	Remaining     map[string]int `json:"remaining"`
	Notifications []string       `json:"notifications"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Steps  []Step     `json:"steps"`
	Final  FinalState `json:"final"`
	Errors []string   `json:"errors,omitempty"`
}

// NewResult creates a passing result with empty collections.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []Step{},
		Errors: []string{},
		Final: FinalState{
			Matches:       []MatchState{},
			Remaining:     map[string]int{},
			Notifications: []string{},
		},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the run log.
func (r *Result) AddStep(op string, result map[string]any) {
	r.Steps = append(r.Steps, Step{Seq: len(r.Steps) + 1, Op: op, Result: result})
}
