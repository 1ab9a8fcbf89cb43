package store

import (
	"encoding/json"
	"strings"
	"time"

	"email-task-extractor/internal/routing"
)

// Extraction is one processed email and the model's view of it.
type Extraction struct {
	ID                string `gorm:"primaryKey;size:36"`
	Sender            string `gorm:"size:255;index"`
	Email             string `gorm:"type:text"`
	Model             string `gorm:"size:128"`
	OverallConfidence float64
	AmbiguitiesJSON   string `gorm:"type:text"`
	RoutingJSON       string `gorm:"type:text"`
	TaskCount         int
	AutoApproved      int
	NeedsReview       int
	UrgentReview      int
	Cached            bool
	ProcessingTimeMs  int64
	ExtractedAt       time.Time `gorm:"index"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	Tasks             []Task    `gorm:"foreignKey:ExtractionID;constraint:OnDelete:CASCADE"`
}

// SetAmbiguities persists the ambiguity notes as JSON.
func (e *Extraction) SetAmbiguities(notes []string) {
	if notes == nil {
		e.AmbiguitiesJSON = "[]"
		return
	}
	payload, _ := json.Marshal(notes)
	e.AmbiguitiesJSON = string(payload)
}

// Ambiguities returns the decoded ambiguity notes.
func (e *Extraction) Ambiguities() []string {
	return decodeStrings(e.AmbiguitiesJSON)
}

// SetRouting persists the routing config the tasks were scored under.
func (e *Extraction) SetRouting(cfg routing.Config) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		e.RoutingJSON = ""
		return
	}
	e.RoutingJSON = string(payload)
}

// Routing returns the stored routing config, if the record has one.
func (e *Extraction) Routing() (routing.Config, bool) {
	if strings.TrimSpace(e.RoutingJSON) == "" {
		return routing.Config{}, false
	}
	var cfg routing.Config
	if err := json.Unmarshal([]byte(e.RoutingJSON), &cfg); err != nil {
		return routing.Config{}, false
	}
	return cfg, true
}

// Task is a routed task belonging to an extraction.
type Task struct {
	ID              uint   `gorm:"primaryKey"`
	ExtractionID    string `gorm:"size:36;index"`
	Position        int
	Description     string  `gorm:"type:text"`
	Assignee        string  `gorm:"size:255;index"`
	Deadline        string  `gorm:"size:255"`
	DeadlineState   string  `gorm:"size:16"`
	AssigneeState   string  `gorm:"size:16"`
	Priority        string  `gorm:"size:16"`
	Reasoning       string  `gorm:"type:text"`
	LLMConfidence   float64 `gorm:"column:llm_confidence"`
	FinalConfidence float64 `gorm:"index"`
	RulePenalties   float64
	AdjustmentsJSON string `gorm:"type:text"`
	ReviewStatus    string `gorm:"size:32;index"`
	Queue           string `gorm:"size:32"`
	RoutedAt        time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TaskFromScored builds a row for a routed task at the given position.
func TaskFromScored(position int, scored routing.ScoredTask, routedAt time.Time) Task {
	row := Task{
		Position:        position,
		Description:     scored.Description,
		Assignee:        scored.Assignee,
		Deadline:        scored.Deadline,
		DeadlineState:   string(scored.DeadlineState),
		AssigneeState:   string(scored.AssigneeState),
		Priority:        string(scored.Priority),
		Reasoning:       scored.Reasoning,
		LLMConfidence:   scored.LLMConfidence,
		FinalConfidence: scored.FinalConfidence,
		RulePenalties:   scored.RulePenalties,
		ReviewStatus:    string(scored.ReviewStatus),
		Queue:           scored.Queue,
		RoutedAt:        routedAt,
	}
	payload, _ := json.Marshal(scored.Adjustments)
	row.AdjustmentsJSON = string(payload)
	return row
}

// Scored rebuilds the routed task from its row.
func (t Task) Scored() routing.ScoredTask {
	var adjustments []routing.Adjustment
	if strings.TrimSpace(t.AdjustmentsJSON) != "" {
		_ = json.Unmarshal([]byte(t.AdjustmentsJSON), &adjustments)
	}
	if adjustments == nil {
		adjustments = []routing.Adjustment{}
	}
	return routing.ScoredTask{
		RawTask: routing.RawTask{
			Description:   t.Description,
			Assignee:      t.Assignee,
			Deadline:      t.Deadline,
			Priority:      routing.Priority(t.Priority),
			LLMConfidence: t.LLMConfidence,
			Reasoning:     t.Reasoning,
		},
		DeadlineState:   routing.DeadlineState(t.DeadlineState),
		AssigneeState:   routing.AssigneeState(t.AssigneeState),
		RulePenalties:   t.RulePenalties,
		FinalConfidence: t.FinalConfidence,
		Adjustments:     adjustments,
		ReviewStatus:    routing.ReviewStatus(t.ReviewStatus),
		Queue:           t.Queue,
	}
}

func decodeStrings(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
