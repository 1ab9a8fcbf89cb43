package ai

import (
	"time"

	"email-task-extractor/internal/routing"
)

// Request is the email handed to an Extractor.
type Request struct {
	Email  string
	Sender string
}

// Task is a single action item as the model reports it.
type Task struct {
	Description     string  `json:"task_description" yaml:"task_description"`
	Assignee        string  `json:"assignee" yaml:"assignee"`
	Deadline        string  `json:"deadline" yaml:"deadline"`
	Priority        string  `json:"priority" yaml:"priority"`
	ConfidenceScore float64 `json:"confidence_score" yaml:"confidence_score"`
	Reasoning       string  `json:"reasoning" yaml:"reasoning"`
}

// Extraction is the structured reply expected from the model.
type Extraction struct {
	Tasks             []Task    `json:"tasks" yaml:"tasks"`
	OverallConfidence float64   `json:"overall_confidence" yaml:"overall_confidence"`
	Ambiguities       []string  `json:"ambiguities" yaml:"ambiguities"`
	Model             string    `json:"model_used,omitempty" yaml:"model_used,omitempty"`
	ExtractedAt       time.Time `json:"extraction_timestamp" yaml:"extraction_timestamp"`
	Cached            bool      `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// RawTasks converts the model's tasks into engine input.
func (e Extraction) RawTasks() []routing.RawTask {
	out := make([]routing.RawTask, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		out = append(out, routing.RawTask{
			Description:   t.Description,
			Assignee:      t.Assignee,
			Deadline:      t.Deadline,
			Priority:      routing.Priority(t.Priority),
			LLMConfidence: t.ConfidenceScore,
			Reasoning:     t.Reasoning,
		})
	}
	return out
}
