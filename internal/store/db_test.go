package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-task-extractor/internal/routing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func scoredFixture(t *testing.T) []routing.ScoredTask {
	t.Helper()
	scored, err := routing.Score([]routing.RawTask{
		{Description: "Send the Q1 report", Assignee: "Sarah", Deadline: "2025-01-15", Priority: routing.PriorityHigh, LLMConfidence: 0.95},
		{Description: "Review the docs", Assignee: "Mike", LLMConfidence: 0.75},
		{Description: "Maybe update the wiki", LLMConfidence: 0.6},
	}, routing.DefaultConfig())
	require.NoError(t, err)
	return scored
}

func extractionFixture(t *testing.T, id string, at time.Time) *Extraction {
	t.Helper()
	e := &Extraction{
		ID:                id,
		Sender:            "jennifer@example.com",
		Email:             "Hi team...",
		Model:             "claude-sonnet-4-20250514",
		OverallConfidence: 0.8,
		ExtractedAt:       at,
	}
	e.SetAmbiguities([]string{"who owns the wiki?"})
	for i, task := range scoredFixture(t) {
		e.Tasks = append(e.Tasks, TaskFromScored(i, task, at))
	}
	return e
}

func TestSaveAndGetExtraction(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := extractionFixture(t, "ext-1", now)
	require.NoError(t, db.SaveExtraction(e))
	assert.Equal(t, 3, e.TaskCount)
	assert.Equal(t, 1, e.AutoApproved)
	assert.Equal(t, 1, e.NeedsReview)
	assert.Equal(t, 1, e.UrgentReview)
	require.Len(t, e.Tasks, 3)

	got, err := db.GetExtraction("ext-1")
	require.NoError(t, err)
	assert.Equal(t, "jennifer@example.com", got.Sender)
	assert.Equal(t, []string{"who owns the wiki?"}, got.Ambiguities())
	require.Len(t, got.Tasks, 3)
	assert.Equal(t, "Send the Q1 report", got.Tasks[0].Description)
	assert.Equal(t, 2, got.Tasks[2].Position)

	urgent := got.Tasks[2].Scored()
	assert.Equal(t, routing.StatusUrgentReview, urgent.ReviewStatus)
	assert.Equal(t, "high_priority_review", urgent.Queue)
	assert.Len(t, urgent.Adjustments, 3)
	assert.InDelta(t, 0.15, urgent.FinalConfidence, 1e-9)
}

func TestGetExtractionNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetExtraction("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LatestExtraction()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveExtractionRequiresID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveExtraction(nil))
	assert.Error(t, db.SaveExtraction(&Extraction{}))
}

func TestListExtractionsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC()
	require.NoError(t, db.SaveExtraction(extractionFixture(t, "old", base.Add(-time.Hour))))
	require.NoError(t, db.SaveExtraction(extractionFixture(t, "new", base)))

	rows, total, err := db.ListExtractions(0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].ID)

	latest, err := db.LatestExtraction()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
	assert.Len(t, latest.Tasks, 3)
}

func TestListTasksFilters(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.SaveExtraction(extractionFixture(t, "a", now)))
	require.NoError(t, db.SaveExtraction(extractionFixture(t, "b", now)))

	rows, total, err := db.ListTasks(TaskQuery{Status: "urgent_review"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, row := range rows {
		assert.Equal(t, "urgent_review", row.ReviewStatus)
	}

	rows, total, err = db.ListTasks(TaskQuery{ExtractionID: "a", Sort: "confidence_desc"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 3)
	assert.Equal(t, "Send the Q1 report", rows[0].Description)
	assert.Equal(t, "Maybe update the wiki", rows[2].Description)

	rows, _, err = db.ListTasks(TaskQuery{Query: "Mike", Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mike", rows[0].Assignee)
}

func TestStatsAndClearHistory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveExtraction(extractionFixture(t, "a", time.Now().UTC())))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.EmailsProcessed)
	assert.EqualValues(t, 3, stats.TasksExtracted)
	assert.EqualValues(t, 1, stats.AutoApproved)
	assert.EqualValues(t, 1, stats.NeedsReview)
	assert.EqualValues(t, 1, stats.UrgentReview)
	assert.InDelta(t, (0.95+0.6+0.15)/3, stats.AverageConfidence, 1e-6)

	require.NoError(t, db.ClearHistory())
	stats, err = db.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.EmailsProcessed)
	assert.Zero(t, stats.TasksExtracted)
}

func TestListTasksEscapesLikeWildcards(t *testing.T) {
	db := openTestDB(t)
	e := extractionFixture(t, "pct", time.Now().UTC())
	e.Tasks[0].Description = "Raise prices by 10% for Q3"
	e.Tasks[1].Description = "Rename user_id column"
	require.NoError(t, db.SaveExtraction(e))

	rows, total, err := db.ListTasks(TaskQuery{Query: "10%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Raise prices by 10% for Q3", rows[0].Description)

	_, total, err = db.ListTasks(TaskQuery{Query: "%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	rows, total, err = db.ListTasks(TaskQuery{Query: "user_id"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Rename user_id column", rows[0].Description)

	_, total, err = db.ListTasks(TaskQuery{Query: "r_i"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = db.ListTasks(TaskQuery{Query: "Q_"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestExtractionRoutingRoundTrip(t *testing.T) {
	db := openTestDB(t)
	e := extractionFixture(t, "cfg", time.Now().UTC())
	cfg := routing.DefaultConfig().WithAutoApproveThreshold(0.9)
	e.SetRouting(cfg)
	require.NoError(t, db.SaveExtraction(e))

	got, err := db.GetExtraction("cfg")
	require.NoError(t, err)
	restored, ok := got.Routing()
	require.True(t, ok)
	assert.Equal(t, cfg, restored)

	_, ok = (&Extraction{}).Routing()
	assert.False(t, ok)
}
