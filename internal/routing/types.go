package routing

import "fmt"

// Priority is the urgency the model assigned to a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultPriority is applied when a task arrives without one.
const DefaultPriority = PriorityMedium

// ReviewStatus is the routing tier a scored task lands in.
type ReviewStatus string

const (
	StatusAutoApproved ReviewStatus = "auto_approved"
	StatusNeedsReview  ReviewStatus = "needs_review"
	StatusUrgentReview ReviewStatus = "urgent_review"
)

// Queue names the review queue backing a tier.
func (s ReviewStatus) Queue() string {
	switch s {
	case StatusAutoApproved:
		return "auto_approved"
	case StatusNeedsReview:
		return "standard_review"
	case StatusUrgentReview:
		return "high_priority_review"
	default:
		return ""
	}
}

// Valid reports whether s is one of the three known tiers.
func (s ReviewStatus) Valid() bool {
	return s.Queue() != ""
}

// DeadlineState separates a concrete deadline from vague or missing ones.
type DeadlineState string

const (
	DeadlineConcrete DeadlineState = "concrete"
	DeadlineVague    DeadlineState = "vague"
	DeadlineAbsent   DeadlineState = "absent"
)

// AssigneeState separates a named owner from groups and unassigned work.
type AssigneeState string

const (
	AssigneeNamed       AssigneeState = "named"
	AssigneeGroup       AssigneeState = "group"
	AssigneeUnspecified AssigneeState = "unspecified"
)

// RawTask is a task as proposed by the extraction step, before scoring.
type RawTask struct {
	Description   string   `json:"description" yaml:"description"`
	Assignee      string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Deadline      string   `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Priority      Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	LLMConfidence float64  `json:"llm_confidence" yaml:"llm_confidence"`
	Reasoning     string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Adjustment records one penalty applied to a task.
type Adjustment struct {
	Reason  string  `json:"reason" yaml:"reason"`
	Penalty float64 `json:"penalty" yaml:"penalty"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s (-%.2f)", a.Reason, a.Penalty)
}

// ScoredTask is a RawTask augmented with the adjusted confidence and routing decision.
type ScoredTask struct {
	RawTask         `yaml:",inline"`
	DeadlineState   DeadlineState `json:"deadline_state" yaml:"deadline_state"`
	AssigneeState   AssigneeState `json:"assignee_state" yaml:"assignee_state"`
	RulePenalties   float64       `json:"rule_penalties" yaml:"rule_penalties"`
	FinalConfidence float64       `json:"final_confidence" yaml:"final_confidence"`
	Adjustments     []Adjustment  `json:"adjustments" yaml:"adjustments"`
	ReviewStatus    ReviewStatus  `json:"review_status" yaml:"review_status"`
	Queue           string        `json:"queue" yaml:"queue"`
}

// AdjustmentLabels renders the applied penalties for display.
func (t ScoredTask) AdjustmentLabels() []string {
	out := make([]string, 0, len(t.Adjustments))
	for _, adj := range t.Adjustments {
		out = append(out, adj.String())
	}
	return out
}
