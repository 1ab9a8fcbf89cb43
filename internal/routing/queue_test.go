package routing

import (
	"math"
	"testing"
)

func TestSummarizeAndReviewQueue(t *testing.T) {
	tasks := []ScoredTask{
		{RawTask: RawTask{Description: "a"}, ReviewStatus: StatusNeedsReview},
		{RawTask: RawTask{Description: "b"}, ReviewStatus: StatusAutoApproved},
		{RawTask: RawTask{Description: "c"}, ReviewStatus: StatusUrgentReview},
		{RawTask: RawTask{Description: "d"}, ReviewStatus: StatusNeedsReview},
	}

	summary := Summarize(tasks)
	if summary != (Summary{Total: 4, AutoApproved: 1, StandardReview: 2, HighPriorityReview: 1}) {
		t.Fatalf("unexpected summary %+v", summary)
	}

	queue := ReviewQueue(tasks)
	var order string
	for _, task := range queue {
		order += task.Description
	}
	if order != "cad" {
		t.Fatalf("expected urgent first then needs_review in input order, got %q", order)
	}

	if approved := Filter(tasks, StatusAutoApproved); len(approved) != 1 || approved[0].Description != "b" {
		t.Fatalf("unexpected filter result %+v", approved)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"auto above one", func(c *Config) { c.AutoApproveThreshold = 1.2 }, "auto_approve_threshold"},
		{"urgent negative", func(c *Config) { c.UrgentThreshold = -0.1 }, "urgent_threshold"},
		{"urgent above auto", func(c *Config) { c.UrgentThreshold = 0.8 }, "urgent_threshold"},
		{"negative penalty", func(c *Config) { c.Penalties.VagueLanguage = -0.1 }, "penalties.vague_language"},
		{"equal thresholds", func(c *Config) { c.UrgentThreshold = 0.7 }, ""},
		{"penalty above one", func(c *Config) { c.Penalties.UnspecifiedAssignee = 1.5 }, ""},
		{"infinite penalty", func(c *Config) { c.Penalties.MissingDeadline = math.Inf(1) }, "penalties.missing_deadline"},
		{"NaN penalty", func(c *Config) { c.Penalties.VagueLanguage = math.NaN() }, "penalties.vague_language"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			invalid, ok := err.(*InvalidConfigError)
			if !ok {
				t.Fatalf("expected *InvalidConfigError, got %T (%v)", err, err)
			}
			if invalid.Field != tc.field {
				t.Fatalf("expected field %s got %s", tc.field, invalid.Field)
			}
		})
	}

	if _, err := Score([]RawTask{{Description: "x"}}, Config{AutoApproveThreshold: 0.2, UrgentThreshold: 0.4}); err == nil {
		t.Fatal("Score should reject an invalid config")
	}
}
