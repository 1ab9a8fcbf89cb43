package routing

import (
	"math"
	"strings"
)

// confidencePrecision bounds float drift so that e.g. 0.6-0.1 compares equal to 0.5.
const confidencePrecision = 1e6

// Score computes the adjusted confidence and review tier for every task.
// Every task is validated before any is scored; output order matches input order.
func Score(tasks []RawTask, cfg Config) ([]ScoredTask, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, task := range tasks {
		if err := validateTask(i, task); err != nil {
			return nil, err
		}
	}
	detector := NewVagueDetector(cfg.VagueTerms)
	out := make([]ScoredTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, scoreTask(task, cfg, detector))
	}
	return out, nil
}

// ScoreTask scores a single task.
func ScoreTask(task RawTask, cfg Config) (ScoredTask, error) {
	scored, err := Score([]RawTask{task}, cfg)
	if err != nil {
		return ScoredTask{}, err
	}
	return scored[0], nil
}

// Classify maps a final confidence onto a tier. Ties resolve to the higher tier.
func Classify(final float64, cfg Config) ReviewStatus {
	switch {
	case final >= cfg.AutoApproveThreshold:
		return StatusAutoApproved
	case final >= cfg.UrgentThreshold:
		return StatusNeedsReview
	default:
		return StatusUrgentReview
	}
}

// ParsePriority normalizes a priority string. Blank input yields the default.
func ParsePriority(value string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return DefaultPriority, true
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return "", false
	}
}

func validateTask(index int, task RawTask) error {
	if strings.TrimSpace(task.Description) == "" {
		return &MalformedTaskError{Index: index, Field: "description", Reason: "is empty"}
	}
	if _, ok := ParsePriority(string(task.Priority)); !ok {
		return &MalformedTaskError{Index: index, Field: "priority", Reason: "must be low, medium or high"}
	}
	return nil
}

func scoreTask(task RawTask, cfg Config, vague *VagueDetector) ScoredTask {
	task.Description = strings.TrimSpace(task.Description)
	task.Assignee = strings.TrimSpace(task.Assignee)
	task.Deadline = strings.TrimSpace(task.Deadline)
	task.Priority, _ = ParsePriority(string(task.Priority))
	task.LLMConfidence = clampUnit(task.LLMConfidence)

	scored := ScoredTask{
		RawTask:       task,
		DeadlineState: ClassifyDeadline(task.Deadline),
		AssigneeState: ClassifyAssignee(task.Assignee),
		Adjustments:   []Adjustment{},
	}

	switch scored.DeadlineState {
	case DeadlineAbsent:
		scored.Adjustments = append(scored.Adjustments, Adjustment{Reason: "No deadline specified", Penalty: cfg.Penalties.MissingDeadline})
	case DeadlineVague:
		scored.Adjustments = append(scored.Adjustments, Adjustment{Reason: "Deadline is not concrete", Penalty: cfg.Penalties.MissingDeadline})
	}
	switch scored.AssigneeState {
	case AssigneeUnspecified:
		scored.Adjustments = append(scored.Adjustments, Adjustment{Reason: "Assignee not specified", Penalty: cfg.Penalties.UnspecifiedAssignee})
	case AssigneeGroup:
		scored.Adjustments = append(scored.Adjustments, Adjustment{Reason: "Assignee is a group", Penalty: cfg.Penalties.UnspecifiedAssignee})
	}
	if vague.Detect(task.Description) {
		scored.Adjustments = append(scored.Adjustments, Adjustment{Reason: "Vague language detected", Penalty: cfg.Penalties.VagueLanguage})
	}

	var penalties float64
	for _, adj := range scored.Adjustments {
		penalties += adj.Penalty
	}
	scored.RulePenalties = stabilize(penalties)

	final := stabilize(math.Max(0, task.LLMConfidence-penalties))
	if final > task.LLMConfidence {
		final = task.LLMConfidence
	}
	scored.FinalConfidence = final
	scored.ReviewStatus = Classify(final, cfg)
	scored.Queue = scored.ReviewStatus.Queue()
	return scored
}

func stabilize(v float64) float64 {
	return math.Round(v*confidencePrecision) / confidencePrecision
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
