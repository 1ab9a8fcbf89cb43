package routing

// Summary counts scored tasks per review queue.
type Summary struct {
	Total              int `json:"total_tasks" yaml:"total_tasks"`
	AutoApproved       int `json:"auto_approved" yaml:"auto_approved"`
	StandardReview     int `json:"standard_review" yaml:"standard_review"`
	HighPriorityReview int `json:"high_priority_review" yaml:"high_priority_review"`
}

// Summarize tallies tasks by tier.
func Summarize(tasks []ScoredTask) Summary {
	summary := Summary{Total: len(tasks)}
	for _, task := range tasks {
		switch task.ReviewStatus {
		case StatusAutoApproved:
			summary.AutoApproved++
		case StatusNeedsReview:
			summary.StandardReview++
		case StatusUrgentReview:
			summary.HighPriorityReview++
		}
	}
	return summary
}

// Filter returns the tasks routed to status, preserving order.
func Filter(tasks []ScoredTask, status ReviewStatus) []ScoredTask {
	out := make([]ScoredTask, 0, len(tasks))
	for _, task := range tasks {
		if task.ReviewStatus == status {
			out = append(out, task)
		}
	}
	return out
}

// ReviewQueue returns every task that needs a human, urgent ones first.
func ReviewQueue(tasks []ScoredTask) []ScoredTask {
	urgent := Filter(tasks, StatusUrgentReview)
	return append(urgent, Filter(tasks, StatusNeedsReview)...)
}
