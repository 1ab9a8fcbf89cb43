package routing

import "math"

const (
	DefaultAutoApproveThreshold = 0.7
	DefaultUrgentThreshold      = 0.5

	DefaultMissingDeadlinePenalty     = 0.15
	DefaultUnspecifiedAssigneePenalty = 0.20
	DefaultVagueLanguagePenalty       = 0.10
)

// Penalties are the fixed deductions applied when a quality signal is missing.
type Penalties struct {
	MissingDeadline     float64 `json:"missing_deadline" yaml:"missing_deadline"`
	UnspecifiedAssignee float64 `json:"unspecified_assignee" yaml:"unspecified_assignee"`
	VagueLanguage       float64 `json:"vague_language" yaml:"vague_language"`
}

// Config drives scoring and routing. It is passed by value and never mutated by the engine.
type Config struct {
	AutoApproveThreshold float64   `json:"auto_approve_threshold" yaml:"auto_approve_threshold"`
	UrgentThreshold      float64   `json:"urgent_threshold" yaml:"urgent_threshold"`
	Penalties            Penalties `json:"penalties" yaml:"penalties"`
	VagueTerms           []string  `json:"vague_terms" yaml:"vague_terms"`
}

// DefaultConfig returns the stock thresholds and penalty table.
func DefaultConfig() Config {
	return Config{
		AutoApproveThreshold: DefaultAutoApproveThreshold,
		UrgentThreshold:      DefaultUrgentThreshold,
		Penalties: Penalties{
			MissingDeadline:     DefaultMissingDeadlinePenalty,
			UnspecifiedAssignee: DefaultUnspecifiedAssigneePenalty,
			VagueLanguage:       DefaultVagueLanguagePenalty,
		},
		VagueTerms: DefaultVagueTerms(),
	}
}

// WithAutoApproveThreshold returns a copy with a different auto-approve cut-off.
func (c Config) WithAutoApproveThreshold(v float64) Config {
	c.AutoApproveThreshold = v
	return c
}

// Validate checks thresholds and penalties.
func (c Config) Validate() error {
	if err := checkUnit("auto_approve_threshold", c.AutoApproveThreshold); err != nil {
		return err
	}
	if err := checkUnit("urgent_threshold", c.UrgentThreshold); err != nil {
		return err
	}
	if c.UrgentThreshold > c.AutoApproveThreshold {
		return &InvalidConfigError{Field: "urgent_threshold", Reason: "must not exceed auto_approve_threshold"}
	}
	penalties := []struct {
		name  string
		value float64
	}{
		{"penalties.missing_deadline", c.Penalties.MissingDeadline},
		{"penalties.unspecified_assignee", c.Penalties.UnspecifiedAssignee},
		{"penalties.vague_language", c.Penalties.VagueLanguage},
	}
	for _, p := range penalties {
		if err := checkPenalty(p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// checkPenalty allows any finite non-negative weight; the floor at zero absorbs
// over-penalization.
func checkPenalty(field string, v float64) error {
	if math.IsNaN(v) {
		return &InvalidConfigError{Field: field, Reason: "is NaN"}
	}
	if math.IsInf(v, 0) {
		return &InvalidConfigError{Field: field, Reason: "must be finite"}
	}
	if v < 0 {
		return &InvalidConfigError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) {
		return &InvalidConfigError{Field: field, Reason: "is NaN"}
	}
	if v < 0 {
		return &InvalidConfigError{Field: field, Reason: "must not be negative"}
	}
	if v > 1 {
		return &InvalidConfigError{Field: field, Reason: "must not exceed 1"}
	}
	return nil
}
