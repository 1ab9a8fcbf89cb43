package api

import (
	"time"

	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

// ExtractRequest is the JSON body accepted by POST /api/extract.
type ExtractRequest struct {
	Email                string   `json:"email"`
	Sender               string   `json:"sender"`
	AutoApproveThreshold *float64 `json:"auto_approve_threshold"`
}

// ScoreRequest carries already-extracted tasks for offline routing.
type ScoreRequest struct {
	Tasks                []routing.RawTask `json:"tasks"`
	AutoApproveThreshold *float64          `json:"auto_approve_threshold"`
}

// ScoreResponse is the routed outcome of a ScoreRequest.
type ScoreResponse struct {
	Tasks        []routing.ScoredTask `json:"tasks"`
	Summary      routing.Summary      `json:"summary"`
	AutoApproved []routing.ScoredTask `json:"auto_approved"`
	ReviewTasks  []routing.ScoredTask `json:"review_tasks"`
	Config       routing.Config       `json:"config"`
}

// ConfigResponse describes the routing rules in effect.
type ConfigResponse struct {
	Routing           routing.Config    `json:"routing"`
	Queues            map[string]string `json:"queues"`
	ExportFormats     []string          `json:"export_formats"`
	ExtractionEnabled bool              `json:"extraction_enabled"`
}

// ExtractionDTO is the API representation for a stored extraction without its tasks.
type ExtractionDTO struct {
	ID                string    `json:"id"`
	Sender            string    `json:"sender"`
	Model             string    `json:"model"`
	OverallConfidence float64   `json:"overall_confidence"`
	Ambiguities       []string  `json:"ambiguities"`
	TaskCount         int       `json:"task_count"`
	AutoApproved      int       `json:"auto_approved"`
	NeedsReview       int       `json:"needs_review"`
	UrgentReview      int       `json:"urgent_review"`
	Cached            bool      `json:"cached"`
	ProcessingTimeMs  int64     `json:"processing_time_ms"`
	ExtractedAt       time.Time `json:"extracted_at"`
	Preview           string    `json:"preview"`
}

// ExtractionListResponse holds extraction items and totals.
type ExtractionListResponse struct {
	Items []ExtractionDTO `json:"items"`
	Total int64           `json:"total"`
}

// TaskDTO is a stored routed task.
type TaskDTO struct {
	ID           uint   `json:"id"`
	ExtractionID string `json:"extraction_id"`
	Position     int    `json:"position"`
	routing.ScoredTask
	RoutedAt time.Time `json:"routed_at"`
}

// TaskListResponse holds task items and totals.
type TaskListResponse struct {
	Items []TaskDTO `json:"items"`
	Total int64     `json:"total"`
}

const previewLength = 140

// FromExtraction converts a stored extraction into its API representation.
func FromExtraction(e store.Extraction) ExtractionDTO {
	ambiguities := e.Ambiguities()
	if ambiguities == nil {
		ambiguities = []string{}
	}
	return ExtractionDTO{
		ID:                e.ID,
		Sender:            e.Sender,
		Model:             e.Model,
		OverallConfidence: e.OverallConfidence,
		Ambiguities:       ambiguities,
		TaskCount:         e.TaskCount,
		AutoApproved:      e.AutoApproved,
		NeedsReview:       e.NeedsReview,
		UrgentReview:      e.UrgentReview,
		Cached:            e.Cached,
		ProcessingTimeMs:  e.ProcessingTimeMs,
		ExtractedAt:       e.ExtractedAt,
		Preview:           preview(e.Email),
	}
}

// FromTask converts a stored task row into its API representation.
func FromTask(t store.Task) TaskDTO {
	return TaskDTO{
		ID:           t.ID,
		ExtractionID: t.ExtractionID,
		Position:     t.Position,
		ScoredTask:   t.Scored(),
		RoutedAt:     t.RoutedAt,
	}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "…"
}
