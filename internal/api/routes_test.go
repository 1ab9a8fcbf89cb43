package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

type stubExtractor struct {
	err     error
	lastReq ai.Request
}

func (s *stubExtractor) Enabled() bool { return true }

func (s *stubExtractor) Extract(_ context.Context, req ai.Request) (ai.Extraction, error) {
	s.lastReq = req
	if s.err != nil {
		return ai.Extraction{}, s.err
	}
	return ai.Extraction{
		Tasks: []ai.Task{
			{Description: "Finalize the marketing analysis report", Assignee: "Sarah", Deadline: "2025-03-20", Priority: "high", ConfidenceScore: 0.95},
			{Description: "Schedule a retrospective", Assignee: "Mike", ConfidenceScore: 0.75},
			{Description: "Update the client database", ConfidenceScore: 0.6},
		},
		OverallConfidence: 0.8,
		Model:             "stub",
		ExtractedAt:       time.Now().UTC(),
	}, nil
}

func newTestServer(t *testing.T, extractor ai.Extractor) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server, err := NewServer(Config{
		DBPath:    filepath.Join(t.TempDir(), "api.db"),
		SilentDB:  true,
		Routing:   routing.DefaultConfig(),
		Extractor: extractor,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	router, err := server.Router()
	require.NoError(t, err)
	return server, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresDBPath(t *testing.T) {
	_, err := NewServer(Config{Routing: routing.DefaultConfig()})
	assert.Error(t, err)
}

func TestHealthAndConfig(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","extraction_enabled":false}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 0.7, cfg.Routing.AutoApproveThreshold)
	assert.Equal(t, "high_priority_review", cfg.Queues["urgent_review"])
	assert.Contains(t, cfg.ExportFormats, "csv")
}

func TestExtractDisabledWithoutExtractor(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtractRoutesAndPersists(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})

	rec := doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "Hi team", Sender: "jennifer@company.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, routing.Summary{Total: 3, AutoApproved: 1, StandardReview: 1, HighPriorityReview: 1}, res.Summary)
	require.Len(t, res.ReviewTasks, 2)
	assert.Equal(t, routing.StatusUrgentReview, res.ReviewTasks[0].ReviewStatus)

	rec = doJSON(t, router, http.MethodGet, "/api/extractions/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, res.Summary, stored.Summary)

	rec = doJSON(t, router, http.MethodGet, "/api/extractions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ExtractionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, 3, list.Items[0].TaskCount)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks?status=urgent_review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks.Items, 1)
	assert.Equal(t, "Update the client database", tasks.Items[0].Description)
	assert.Equal(t, res.ID, tasks.Items[0].ExtractionID)

	rec = doJSON(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.EmailsProcessed)
	assert.EqualValues(t, 3, stats.TasksExtracted)

	rec = doJSON(t, router, http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/extractions/"+res.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractThresholdOverride(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})
	strict := 0.99
	rec := doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "Hi", AutoApproveThreshold: &strict})
	require.Equal(t, http.StatusOK, rec.Code)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Zero(t, res.Summary.AutoApproved)

	rec = doJSON(t, router, http.MethodGet, "/api/extractions/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.InDelta(t, strict, stored.Config.AutoApproveThreshold, 1e-9)
	assert.Equal(t, res.Summary, stored.Summary)

	rec = doJSON(t, router, http.MethodGet, "/api/export.json?extraction_id="+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exported pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.InDelta(t, strict, exported.Config.AutoApproveThreshold, 1e-9)

	invalid := 0.2
	rec = doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "Hi", AutoApproveThreshold: &invalid})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractErrorMapping(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})
	rec := doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, failing := newTestServer(t, &stubExtractor{err: errors.New("upstream 500")})
	rec = doJSON(t, failing, http.MethodPost, "/api/extract", ExtractRequest{Email: "hello"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream 500")
}

func TestExtractMultipartUpload(t *testing.T) {
	extractor := &stubExtractor{}
	_, router := newTestServer(t, extractor)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("email_file", "note.eml")
	require.NoError(t, err)
	_, err = part.Write([]byte("From: Ops <ops@company.com>\r\nSubject: Migration\r\n\r\nMike, migrate the server by Friday.\r\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ops@company.com", extractor.lastReq.Sender)
	assert.Equal(t, "Subject: Migration\n\nMike, migrate the server by Friday.", extractor.lastReq.Email)
}

func TestExtractMultipartRejectsUnsupportedFile(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("email_file", "note.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreEndpoint(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/score", ScoreRequest{Tasks: []routing.RawTask{
		{Description: "Send report", Assignee: "Ana", Deadline: "2025-01-01", LLMConfidence: 0.9},
		{Description: "Maybe look into it", LLMConfidence: 0.5},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.AutoApproved)
	assert.Equal(t, 1, resp.Summary.HighPriorityReview)
	assert.InDelta(t, 0.05, resp.Tasks[1].FinalConfidence, 1e-9)

	rec = doJSON(t, router, http.MethodPost, "/api/score", ScoreRequest{Tasks: []routing.RawTask{{Description: " ", LLMConfidence: 0.9}}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/score", ScoreRequest{Tasks: []routing.RawTask{}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Tasks)
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/tasks?status=later", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportEndpoints(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})

	rec := doJSON(t, router, http.MethodGet, "/api/export.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "Hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)

	rec = doJSON(t, router, http.MethodGet, "/api/export.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Extracted Tasks")

	rec = doJSON(t, router, http.MethodGet, "/api/export.html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Extracted Tasks</h1>")

	rec = doJSON(t, router, http.MethodGet, "/api/export.json?extraction_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestServer(t, &stubExtractor{})
	rec := doJSON(t, router, http.MethodPost, "/api/extract", ExtractRequest{Email: "Hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskx_pipeline_extractions_total")
}

func TestStreamBroadcastsExtractions(t *testing.T) {
	server, router := newTestServer(t, &stubExtractor{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return server.notifier.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/extract", "application/json", strings.NewReader(`{"email":"Hi team","sender":"jennifer@company.com"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event ExtractionEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "extraction", event.Type)
	assert.Equal(t, "jennifer@company.com", event.Sender)
	require.NotNil(t, event.Summary)
	assert.Equal(t, 3, event.Summary.Total)
	assert.Equal(t, []string{"Update the client database"}, event.Urgent)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusForError(&routing.MalformedTaskError{Index: 0, Field: "description"}))
	assert.Equal(t, http.StatusBadRequest, statusForError(&routing.InvalidConfigError{Field: "x"}))
	assert.Equal(t, http.StatusNotFound, statusForError(store.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("other")))
}
