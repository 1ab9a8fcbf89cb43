package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/email"
	"email-task-extractor/internal/export"
	"email-task-extractor/internal/metrics"
	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	SilentDB       bool
	AllowedOrigins []string
	Routing        routing.Config
	Extractor      ai.Extractor
	RequestTimeout time.Duration
}

// Server wires HTTP handlers with persistence and routing.
type Server struct {
	db             *store.Database
	processor      *pipeline.Processor
	routing        routing.Config
	allowedOrigins []string
	notifier       *ExtractionNotifier
	requestTimeout time.Duration
}

const (
	maxUploadBytes        = 5 << 20
	defaultRequestTimeout = 2 * time.Minute
)

var errExtractionDisabled = errors.New("extraction disabled: configure an API key")

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	if err := cfg.Routing.Validate(); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:             db,
		routing:        cfg.Routing,
		allowedOrigins: cfg.AllowedOrigins,
		notifier:       NewExtractionNotifier(),
		requestTimeout: cfg.RequestTimeout,
	}
	if server.requestTimeout <= 0 {
		server.requestTimeout = defaultRequestTimeout
	}

	if cfg.Extractor == nil || !cfg.Extractor.Enabled() {
		logrus.Info("extraction disabled - no API key configured; offline scoring only")
	} else {
		processor, err := pipeline.New(cfg.Extractor, pipeline.Options{
			Routing: cfg.Routing,
			Store:   db,
			Metrics: metrics.Prometheus{},
			Notifier: func(res *pipeline.Result) {
				server.notifier.Broadcast(EventFromResult(res))
			},
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		server.processor = processor
	}
	return server, nil
}

// Close releases the database handle.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/sample", s.handleSample)
		api.POST("/extract", s.handleExtract)
		api.POST("/score", s.handleScore)
		api.GET("/extractions", s.handleListExtractions)
		api.GET("/extractions/:id", s.handleGetExtraction)
		api.GET("/tasks", s.handleListTasks)
		api.GET("/stats", s.handleStats)
		api.DELETE("/history", s.handleClearHistory)
		api.GET("/stream", s.handleStream)
		for _, format := range export.Formats() {
			api.GET("/export."+string(format), s.handleExport(format))
		}
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "extraction_enabled": s.processor != nil})
}

func (s *Server) handleConfig(c *gin.Context) {
	formats := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		formats = append(formats, string(f))
	}
	queues := make(map[string]string, 3)
	for _, status := range []routing.ReviewStatus{routing.StatusAutoApproved, routing.StatusNeedsReview, routing.StatusUrgentReview} {
		queues[string(status)] = status.Queue()
	}
	c.JSON(http.StatusOK, ConfigResponse{
		Routing:           s.routing,
		Queues:            queues,
		ExportFormats:     formats,
		ExtractionEnabled: s.processor != nil,
	})
}

func (s *Server) handleSample(c *gin.Context) {
	sample := email.Sample()
	c.JSON(http.StatusOK, gin.H{"email": sample.Body, "sender": sample.From})
}

func (s *Server) handleExtract(c *gin.Context) {
	if s.processor == nil {
		s.renderError(c, http.StatusServiceUnavailable, errExtractionDisabled)
		return
	}

	var req ExtractRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := s.bindMultipartExtract(c)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
		req = parsed
	} else if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	processor := s.processor
	if req.AutoApproveThreshold != nil {
		override, err := processor.WithRouting(s.routing.WithAutoApproveThreshold(*req.AutoApproveThreshold))
		if err != nil {
			s.renderError(c, statusForError(err), err)
			return
		}
		processor = override
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()
	res, err := processor.Process(ctx, pipeline.Input{Email: req.Email, Sender: req.Sender})
	if err != nil {
		s.renderError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) bindMultipartExtract(c *gin.Context) (ExtractRequest, error) {
	req := ExtractRequest{
		Email:  c.PostForm("email"),
		Sender: strings.TrimSpace(c.PostForm("sender")),
	}
	if value := strings.TrimSpace(c.PostForm("auto_approve_threshold")); value != "" {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return req, fmt.Errorf("invalid auto_approve_threshold: %s", value)
		}
		req.AutoApproveThreshold = &threshold
	}

	header, err := c.FormFile("email_file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		return req, err
	}
	if !email.IsSupported(header.Filename) {
		return req, fmt.Errorf("unsupported file type %q: upload a .txt or .eml file", header.Filename)
	}
	if header.Size > maxUploadBytes {
		return req, fmt.Errorf("email file exceeds %d bytes", maxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return req, err
	}
	defer f.Close()

	msg, err := email.Parse(f)
	if err != nil {
		return req, err
	}
	req.Email = msg.Text()
	if req.Sender == "" {
		req.Sender = msg.From
	}
	return req, nil
}

func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	cfg := s.routing
	if req.AutoApproveThreshold != nil {
		cfg = cfg.WithAutoApproveThreshold(*req.AutoApproveThreshold)
	}
	scored, err := routing.Score(req.Tasks, cfg)
	if err != nil {
		s.renderError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{
		Tasks:        scored,
		Summary:      routing.Summarize(scored),
		AutoApproved: routing.Filter(scored, routing.StatusAutoApproved),
		ReviewTasks:  routing.ReviewQueue(scored),
		Config:       cfg,
	})
}

func (s *Server) handleListExtractions(c *gin.Context) {
	offset, limit := pagination(c)
	rows, total, err := s.db.ListExtractions(offset, limit)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ExtractionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromExtraction(row))
	}
	c.JSON(http.StatusOK, ExtractionListResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetExtraction(c *gin.Context) {
	record, err := s.db.GetExtraction(c.Param("id"))
	if err != nil {
		s.renderError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, pipeline.FromRecord(record, s.routing))
}

func (s *Server) handleListTasks(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !routing.ReviewStatus(strings.ToLower(status)).Valid() {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid status: %s", status))
		return
	}
	offset, limit := pagination(c)
	rows, total, err := s.db.ListTasks(store.TaskQuery{
		ExtractionID: strings.TrimSpace(c.Query("extraction_id")),
		Status:       status,
		Query:        strings.TrimSpace(c.Query("q")),
		Sort:         strings.TrimSpace(c.Query("sort")),
		Offset:       offset,
		Limit:        limit,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]TaskDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromTask(row))
	}
	c.JSON(http.StatusOK, TaskListResponse{Items: dtos, Total: total})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.db.Stats()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleClearHistory(c *gin.Context) {
	if err := s.db.ClearHistory(); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	s.notifier.Broadcast(ExtractionEvent{Type: eventCleared, Message: "history cleared"})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExport(format export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			record *store.Extraction
			err    error
		)
		if id := strings.TrimSpace(c.Query("extraction_id")); id != "" {
			record, err = s.db.GetExtraction(id)
		} else {
			record, err = s.db.LatestExtraction()
		}
		if err != nil {
			s.renderError(c, statusForError(err), err)
			return
		}

		data, err := export.Render(format, pipeline.FromRecord(record, s.routing))
		if err != nil {
			s.renderError(c, http.StatusInternalServerError, err)
			return
		}
		filename := export.Filename("tasks", format, record.ExtractedAt)
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, format.ContentType(), data)
	}
}

func (s *Server) handleStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("extraction websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("extraction websocket closed")
			} else {
				logrus.WithError(err).Warn("extraction websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, routing.ErrMalformedTask):
		return http.StatusUnprocessableEntity
	case errors.Is(err, routing.ErrInvalidConfig), errors.Is(err, pipeline.ErrEmptyEmail):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrExtraction):
		return http.StatusBadGateway
	case errors.Is(err, ai.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 50
	}
	return page * pageSize, pageSize
}
