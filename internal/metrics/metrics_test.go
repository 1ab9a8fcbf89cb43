package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"email-task-extractor/internal/routing"
)

func TestPrometheusRecorder(t *testing.T) {
	before := testutil.ToFloat64(ExtractionsTotal.WithLabelValues(OutcomeSuccess))
	urgentBefore := testutil.ToFloat64(TasksRouted.WithLabelValues(string(routing.StatusUrgentReview)))

	var rec Recorder = Prometheus{}
	rec.ObserveExtraction(OutcomeSuccess, 120*time.Millisecond)
	rec.ObserveTasks([]routing.ScoredTask{
		{FinalConfidence: 0.2, ReviewStatus: routing.StatusUrgentReview},
		{FinalConfidence: 0.9, ReviewStatus: routing.StatusAutoApproved},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(ExtractionsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, urgentBefore+1, testutil.ToFloat64(TasksRouted.WithLabelValues(string(routing.StatusUrgentReview))))
}
