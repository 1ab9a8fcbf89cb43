package pipeline

import (
	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

// ToRecord converts a result into its persisted form.
func ToRecord(res *Result, email string) *store.Extraction {
	record := &store.Extraction{
		ID:                res.ID,
		Sender:            res.Sender,
		Email:             email,
		Model:             res.Extraction.Model,
		OverallConfidence: res.Extraction.OverallConfidence,
		Cached:            res.Extraction.Cached,
		ProcessingTimeMs:  res.ProcessingTimeMs,
		ExtractedAt:       res.Extraction.ExtractedAt,
	}
	if record.ExtractedAt.IsZero() {
		record.ExtractedAt = res.RoutedAt
	}
	record.SetAmbiguities(res.Extraction.Ambiguities)
	record.SetRouting(res.Config)
	record.Tasks = make([]store.Task, 0, len(res.Tasks))
	for i, task := range res.Tasks {
		record.Tasks = append(record.Tasks, store.TaskFromScored(i, task, res.RoutedAt))
	}
	return record
}

// FromRecord rebuilds a result from a stored extraction. Stored tasks keep the
// routing they were saved with, and so does the reported config; fallback is
// used only for records saved without one.
func FromRecord(record *store.Extraction, fallback routing.Config) *Result {
	cfg, ok := record.Routing()
	if !ok {
		cfg = fallback
	}
	scored := make([]routing.ScoredTask, 0, len(record.Tasks))
	routedAt := record.ExtractedAt
	for _, row := range record.Tasks {
		scored = append(scored, row.Scored())
		if !row.RoutedAt.IsZero() {
			routedAt = row.RoutedAt
		}
	}
	extraction := ai.Extraction{
		OverallConfidence: record.OverallConfidence,
		Ambiguities:       record.Ambiguities(),
		Model:             record.Model,
		ExtractedAt:       record.ExtractedAt,
		Cached:            record.Cached,
	}
	for _, task := range scored {
		extraction.Tasks = append(extraction.Tasks, ai.Task{
			Description:     task.Description,
			Assignee:        task.Assignee,
			Deadline:        task.Deadline,
			Priority:        string(task.Priority),
			ConfidenceScore: task.LLMConfidence,
			Reasoning:       task.Reasoning,
		})
	}
	return &Result{
		ID:               record.ID,
		Success:          true,
		Sender:           record.Sender,
		Extraction:       extraction,
		Tasks:            scored,
		Summary:          routing.Summarize(scored),
		AutoApproved:     routing.Filter(scored, routing.StatusAutoApproved),
		ReviewTasks:      routing.ReviewQueue(scored),
		Config:           cfg,
		ProcessingTimeMs: record.ProcessingTimeMs,
		RoutedAt:         routedAt,
	}
}
