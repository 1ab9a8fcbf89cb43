package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested extraction does not exist.
var ErrNotFound = errors.New("record not found")

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Extraction{}, &Task{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveExtraction stores an extraction together with its tasks.
func (d *Database) SaveExtraction(e *Extraction) error {
	if e == nil {
		return errors.New("extraction is nil")
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("extraction id is empty")
	}
	if e.AmbiguitiesJSON == "" {
		e.SetAmbiguities(nil)
	}
	e.TaskCount = len(e.Tasks)
	e.AutoApproved, e.NeedsReview, e.UrgentReview = 0, 0, 0
	for i := range e.Tasks {
		e.Tasks[i].ExtractionID = e.ID
		switch e.Tasks[i].ReviewStatus {
		case "auto_approved":
			e.AutoApproved++
		case "needs_review":
			e.NeedsReview++
		case "urgent_review":
			e.UrgentReview++
		}
	}
	if e.ExtractedAt.IsZero() {
		e.ExtractedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		tasks := e.Tasks
		e.Tasks = nil
		defer func() { e.Tasks = tasks }()
		if err := tx.Create(e).Error; err != nil {
			return fmt.Errorf("insert extraction: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}
		const batchSize = 250
		if err := tx.CreateInBatches(tasks, batchSize).Error; err != nil {
			return fmt.Errorf("insert tasks: %w", err)
		}
		return nil
	})
}

// GetExtraction retrieves an extraction and its tasks in position order.
func (d *Database) GetExtraction(id string) (*Extraction, error) {
	var e Extraction
	err := d.gorm.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("tasks.position ASC")
	}).First(&e, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestExtraction returns the most recent extraction with its tasks.
func (d *Database) LatestExtraction() (*Extraction, error) {
	var e Extraction
	err := d.gorm.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("tasks.position ASC")
	}).Order("extracted_at DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExtractions returns a paged set of extractions, newest first, without tasks.
func (d *Database) ListExtractions(offset, limit int) ([]Extraction, int64, error) {
	var total int64
	if err := d.gorm.Model(&Extraction{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := d.gorm.Model(&Extraction{}).Order("extracted_at DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var rows []Extraction
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// TaskQuery encapsulates filters and pagination for listing task rows.
type TaskQuery struct {
	ExtractionID string
	Status       string
	Query        string
	Sort         string
	Offset       int
	Limit        int
}

// ListTasks returns paginated task records applying optional filters.
func (d *Database) ListTasks(opts TaskQuery) ([]Task, int64, error) {
	var total int64
	base := d.gorm.Model(&Task{})
	if id := strings.TrimSpace(opts.ExtractionID); id != "" {
		base = base.Where("extraction_id = ?", id)
	}
	if status := strings.TrimSpace(opts.Status); status != "" {
		base = base.Where("review_status = ?", strings.ToLower(status))
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := "%" + likeEscaper.Replace(q) + "%"
		base = base.Where(`description LIKE ? ESCAPE '\' OR assignee LIKE ? ESCAPE '\'`, like, like)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	queryBuilder := base.Order(orderForSort(opts.Sort)).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Task
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "confidence_asc":
		return "tasks.final_confidence ASC, tasks.id ASC"
	case "confidence_desc":
		return "tasks.final_confidence DESC, tasks.id ASC"
	case "assignee_asc":
		return "tasks.assignee ASC, tasks.id ASC"
	case "created_asc":
		return "tasks.id ASC"
	case "created_desc":
		return "tasks.id DESC"
	default:
		return "tasks.id DESC"
	}
}

// Stats aggregates the stored history.
type Stats struct {
	EmailsProcessed   int64   `json:"emails_processed"`
	TasksExtracted    int64   `json:"tasks_extracted"`
	AutoApproved      int64   `json:"auto_approved"`
	NeedsReview       int64   `json:"needs_review"`
	UrgentReview      int64   `json:"urgent_review"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Stats returns counts across all stored extractions.
func (d *Database) Stats() (Stats, error) {
	var stats Stats
	if err := d.gorm.Model(&Extraction{}).Count(&stats.EmailsProcessed).Error; err != nil {
		return Stats{}, err
	}

	var rows []struct {
		ReviewStatus string
		Total        int64
		Confidence   float64
	}
	if err := d.gorm.Model(&Task{}).
		Select("review_status, COUNT(*) AS total, COALESCE(SUM(final_confidence), 0) AS confidence").
		Group("review_status").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}
	var confidenceSum float64
	for _, row := range rows {
		stats.TasksExtracted += row.Total
		confidenceSum += row.Confidence
		switch row.ReviewStatus {
		case "auto_approved":
			stats.AutoApproved = row.Total
		case "needs_review":
			stats.NeedsReview = row.Total
		case "urgent_review":
			stats.UrgentReview = row.Total
		}
	}
	if stats.TasksExtracted > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TasksExtracted)
	}
	return stats, nil
}

// ClearHistory removes every stored extraction and task.
func (d *Database) ClearHistory() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		session := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := session.Delete(&Task{}).Error; err != nil {
			return err
		}
		return session.Delete(&Extraction{}).Error
	})
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_tasks_extraction_position ON tasks(extraction_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_status_confidence ON tasks(review_status, final_confidence)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
