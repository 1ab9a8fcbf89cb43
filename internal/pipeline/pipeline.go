// Package pipeline runs an email through extraction, scoring and routing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/metrics"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
	"email-task-extractor/internal/util"
)

var (
	// ErrEmptyEmail is returned when the email body is blank.
	ErrEmptyEmail = errors.New("email is empty")
	// ErrExtraction wraps failures of the extraction step.
	ErrExtraction = errors.New("task extraction failed")
)

// Recorder persists processed emails.
type Recorder interface {
	SaveExtraction(e *store.Extraction) error
}

// Input is one email to process.
type Input struct {
	Email  string `json:"email" yaml:"email"`
	Sender string `json:"sender,omitempty" yaml:"sender,omitempty"`
}

// Result is the routed outcome for one email.
type Result struct {
	ID               string               `json:"id" yaml:"id"`
	Success          bool                 `json:"success" yaml:"success"`
	Sender           string               `json:"sender,omitempty" yaml:"sender,omitempty"`
	Extraction       ai.Extraction        `json:"extraction" yaml:"extraction"`
	Tasks            []routing.ScoredTask `json:"tasks" yaml:"tasks"`
	Summary          routing.Summary      `json:"summary" yaml:"summary"`
	AutoApproved     []routing.ScoredTask `json:"auto_approved" yaml:"auto_approved"`
	ReviewTasks      []routing.ScoredTask `json:"review_tasks" yaml:"review_tasks"`
	Config           routing.Config       `json:"config" yaml:"config"`
	ProcessingTimeMs int64                `json:"processing_time_ms" yaml:"processing_time_ms"`
	RoutedAt         time.Time            `json:"routed_at" yaml:"routed_at"`
	Error            string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Options configures a Processor.
type Options struct {
	Routing  routing.Config
	Store    Recorder
	Metrics  metrics.Recorder
	Notifier func(*Result)
}

// Processor wires an extractor to the routing engine.
type Processor struct {
	extractor ai.Extractor
	routing   routing.Config
	store     Recorder
	metrics   metrics.Recorder
	notify    func(*Result)
}

// New builds a Processor. The routing config is validated up front.
func New(extractor ai.Extractor, opts Options) (*Processor, error) {
	if extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", ai.ErrDisabled)
	}
	if err := opts.Routing.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		extractor: extractor,
		routing:   opts.Routing,
		store:     opts.Store,
		metrics:   opts.Metrics,
		notify:    opts.Notifier,
	}, nil
}

// Routing returns the routing config in effect.
func (p *Processor) Routing() routing.Config {
	return p.routing
}

// Enabled reports whether the underlying extractor can be called.
func (p *Processor) Enabled() bool {
	return p != nil && p.extractor != nil && p.extractor.Enabled()
}

// WithRouting returns a copy of p that routes with cfg.
func (p *Processor) WithRouting(cfg routing.Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clone := *p
	clone.routing = cfg
	return &clone, nil
}

// Process extracts, scores and routes the tasks in a single email.
func (p *Processor) Process(ctx context.Context, in Input) (*Result, error) {
	timer := util.StartTimer()
	email := strings.TrimSpace(in.Email)
	if email == "" {
		p.observe(metrics.OutcomeEmpty, 0)
		return nil, ErrEmptyEmail
	}
	sender := strings.TrimSpace(in.Sender)
	log := logrus.WithField("sender", sender)

	extraction, err := p.extractor.Extract(ctx, ai.Request{Email: email, Sender: sender})
	if err != nil {
		p.observe(metrics.OutcomeExtractionError, timer.Elapsed())
		log.WithError(err).Warn("extraction failed")
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	scored, err := routing.Score(extraction.RawTasks(), p.routing)
	if err != nil {
		p.observe(metrics.OutcomeScoringError, timer.Elapsed())
		return nil, err
	}

	result := &Result{
		ID:           uuid.NewString(),
		Success:      true,
		Sender:       sender,
		Extraction:   extraction,
		Tasks:        scored,
		Summary:      routing.Summarize(scored),
		AutoApproved: routing.Filter(scored, routing.StatusAutoApproved),
		ReviewTasks:  routing.ReviewQueue(scored),
		Config:       p.routing,
		RoutedAt:     time.Now().UTC(),
	}
	result.ProcessingTimeMs = timer.ElapsedMs()

	if p.store != nil {
		if err := p.store.SaveExtraction(ToRecord(result, email)); err != nil {
			log.WithError(err).WithField("id", result.ID).Warn("persist extraction")
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveTasks(scored)
	}
	p.observe(metrics.OutcomeSuccess, timer.Elapsed())
	if p.notify != nil {
		p.notify(result)
	}

	log.WithFields(logrus.Fields{
		"id":            result.ID,
		"tasks":         result.Summary.Total,
		"auto_approved": result.Summary.AutoApproved,
		"review":        result.Summary.StandardReview + result.Summary.HighPriorityReview,
		"elapsed_ms":    result.ProcessingTimeMs,
	}).Info("email processed")
	return result, nil
}

// ProcessBatch handles independent emails concurrently with at most workers in flight.
// Results keep input order. A failed email yields a Result with Success false and Error set.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []Input, workers int) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := p.Process(gctx, in)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				res = &Result{Success: false, Sender: strings.TrimSpace(in.Sender), Error: err.Error(), RoutedAt: time.Now().UTC()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Rescore routes a previously extracted email again under cfg, keeping its id.
func Rescore(res *Result, cfg routing.Config) (*Result, error) {
	if res == nil {
		return nil, errors.New("result is nil")
	}
	scored, err := routing.Score(res.Extraction.RawTasks(), cfg)
	if err != nil {
		return nil, err
	}
	out := *res
	out.Tasks = scored
	out.Summary = routing.Summarize(scored)
	out.AutoApproved = routing.Filter(scored, routing.StatusAutoApproved)
	out.ReviewTasks = routing.ReviewQueue(scored)
	out.Config = cfg
	out.RoutedAt = time.Now().UTC()
	return &out, nil
}

func (p *Processor) observe(outcome string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveExtraction(outcome, elapsed)
	}
}
