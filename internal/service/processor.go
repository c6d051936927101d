package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
	"roastbot/internal/metrics"
	"roastbot/internal/telemetry"
)

// ProcessorConfig bounds each external call made for one target.
type ProcessorConfig struct {
	ExtractTimeout  time.Duration
	CritiqueTimeout time.Duration
	StoreTimeout    time.Duration
}

// Job is the input of one Process call.
type Job struct {
	RunID    string
	Index    int
	Target   domain.Target
	Style    domain.Style
	MaxSteps int
}

// Processor runs extract, critique and persist for a single target.
type Processor struct {
	extractor ports.Extractor
	critic    ports.Critic
	store     ports.ArtifactStore
	cfg       ProcessorConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewProcessor creates a Processor. store may be nil, in which case no
// screenshots are attached.
func NewProcessor(
	extractor ports.Extractor,
	critic ports.Critic,
	store ports.ArtifactStore,
	cfg ProcessorConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		extractor: extractor,
		critic:    critic,
		store:     store,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Process turns one target into exactly one Outcome. It never returns an
// error and never panics: every failure becomes a failed Outcome.
func (p *Processor) Process(ctx context.Context, job Job) domain.Outcome {
	ctx, span := telemetry.StartTargetSpan(ctx, job.RunID, job.Index, job.Target.Website)
	defer span.End()

	p.metrics.ProcessorStarted()
	defer p.metrics.ProcessorFinished()

	log := p.logger.With().
		Str("run_id", job.RunID).
		Int("index", job.Index).
		Str("website", job.Target.Website).
		Logger()

	out := p.process(ctx, job, log)
	out.CompletedAt = p.now().UTC()
	p.metrics.ObserveOutcome(out)

	ev := log.Info()
	if out.Status == domain.OutcomeFailed {
		ev = log.Warn().Str("reason", out.ErrorReason).Str("detail", out.ErrorDetail)
	}
	ev.Str("status", string(out.Status)).Msg("target processed")
	return out
}

func (p *Processor) process(ctx context.Context, job Job, log zerolog.Logger) domain.Outcome {
	out := domain.Outcome{Index: job.Index, Target: job.Target, Attempts: 1}
	slug := fmt.Sprintf("%d-%s", job.Index, domain.Slug(job.Target.Website))

	extraction, err := p.extract(ctx, job)
	if err != nil {
		return failed(out, domain.ReasonExtraction, err)
	}
	summary := extraction.Summary
	out.Summary = &summary

	if !summary.HasContent() {
		return failed(out, domain.ReasonNoContent, errors.New("page has no title or hero text"))
	}

	roast, err := p.critique(ctx, job, summary)
	out.ScreenshotURL = p.storeScreenshot(ctx, job.RunID, slug, extraction.Screenshot, log)
	p.storeTrace(ctx, job, slug, summary, roast, log)
	if err != nil {
		return failed(out, domain.ReasonGeneration, err)
	}

	out.Status = domain.OutcomeDone
	out.Roast = roast
	return out
}

func failed(out domain.Outcome, reason string, err error) domain.Outcome {
	out.Status = domain.OutcomeFailed
	out.ErrorReason = reason
	out.ErrorDetail = err.Error()
	return out
}

func (p *Processor) extract(ctx context.Context, job Job) (*ports.Extraction, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()
	ctx, span := telemetry.StartStageSpan(ctx, "extract")
	start := time.Now()

	var res *ports.Extraction
	err := guard(func() error {
		var err error
		res, err = p.extractor.Extract(ctx, job.Target.Website, job.MaxSteps)
		return err
	})
	if err == nil && res == nil {
		err = errors.New("extractor returned no result")
	}

	p.metrics.ObserveStage("extract", time.Since(start))
	telemetry.EndSpan(span, err)
	return res, err
}

func (p *Processor) critique(ctx context.Context, job Job, summary domain.PageSummary) (string, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.CritiqueTimeout)
	defer cancel()
	ctx, span := telemetry.StartStageSpan(ctx, "critique")
	start := time.Now()

	var roast string
	err := guard(func() error {
		var err error
		roast, err = p.critic.Critique(ctx, summary, job.Style, job.MaxSteps)
		return err
	})
	roast = strings.TrimSpace(roast)
	if err == nil && roast == "" {
		err = errors.New("critic returned empty text")
	}

	p.metrics.ObserveStage("critique", time.Since(start))
	telemetry.EndSpan(span, err)
	return roast, err
}

// storeScreenshot persists data and returns its URL. Any failure only drops the URL.
func (p *Processor) storeScreenshot(ctx context.Context, runID, slug string, data []byte, log zerolog.Logger) string {
	if p.store == nil || len(data) == 0 {
		return ""
	}
	ctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	ctx, span := telemetry.StartStageSpan(ctx, "store")
	start := time.Now()

	var ref string
	err := guard(func() error {
		var err error
		ref, err = p.store.PutScreenshot(ctx, runID, slug, data)
		return err
	})

	p.metrics.ObserveStage("store", time.Since(start))
	telemetry.EndSpan(span, err)
	if err != nil {
		log.Warn().Err(err).Msg("screenshot not stored")
		return ""
	}
	return ref
}

type traceDoc struct {
	URL       string             `json:"url"`
	Summary   domain.PageSummary `json:"summary"`
	Roast     string             `json:"roast,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (p *Processor) storeTrace(ctx context.Context, job Job, slug string, summary domain.PageSummary, roast string, log zerolog.Logger) {
	if p.store == nil {
		return
	}
	data, err := json.MarshalIndent(traceDoc{
		URL:       job.Target.Website,
		Summary:   summary,
		Roast:     roast,
		Timestamp: p.now().UTC(),
	}, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("encode trace")
		return
	}

	ctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	err = guard(func() error {
		_, err := p.store.PutTrace(ctx, job.RunID, slug, data)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("trace not stored")
	}
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
