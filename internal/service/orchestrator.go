package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
	"roastbot/internal/metrics"
	"roastbot/internal/telemetry"
)

const sinkTimeout = 5 * time.Second

// Options tunes run creation.
type Options struct {
	DefaultConcurrency int
	MaxConcurrency     int
	DefaultMaxSteps    int
	DefaultYCLimit     int
	SubscriberBuffer   int
	Retry              RetryPolicy
	StreamPrefix       string
	Sink               ports.EventSink
}

func (o Options) withDefaults() Options {
	if o.DefaultConcurrency < 1 {
		o.DefaultConcurrency = 3
	}
	if o.MaxConcurrency < o.DefaultConcurrency {
		o.MaxConcurrency = o.DefaultConcurrency
	}
	if o.DefaultMaxSteps < 1 {
		o.DefaultMaxSteps = 6
	}
	if o.DefaultYCLimit < 1 {
		o.DefaultYCLimit = 24
	}
	if o.SubscriberBuffer < 1 {
		o.SubscriberBuffer = 64
	}
	if o.StreamPrefix == "" {
		o.StreamPrefix = "/stream/"
	}
	return o
}

// Orchestrator creates runs, drives them through the scheduler and exposes
// their state and event streams.
type Orchestrator struct {
	processor *Processor
	listers   map[domain.Source]ports.Lister
	registry  *Registry
	opts      Options
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	newID     func() string

	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator. listers maps each accepted
// non-custom source to the Lister that resolves it.
func NewOrchestrator(
	processor *Processor,
	listers map[domain.Source]ports.Lister,
	opts Options,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		processor: processor,
		listers:   listers,
		registry:  NewRegistry(),
		opts:      opts.withDefaults(),
		metrics:   m,
		logger:    logger,
		newID:     func() string { return uuid.New().String() },
		baseCtx:   ctx,
		stopAll:   cancel,
	}
}

// Registry exposes the run registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// CreateRun validates req, resolves its targets and starts the run in the
// background. Validation and listing happen before any run is registered, so
// an ErrInvalidRequest means no run exists. A listing error registers the run
// directly in the failed state.
func (o *Orchestrator) CreateRun(ctx context.Context, req domain.RunRequest) (*domain.RunTicket, error) {
	style, err := domain.ParseStyle(req.Style)
	if err != nil {
		return nil, err
	}
	maxSteps := req.MaxSteps
	switch {
	case maxSteps == 0:
		maxSteps = o.opts.DefaultMaxSteps
	case maxSteps < 1:
		return nil, fmt.Errorf("%w: max_steps must be at least 1", domain.ErrInvalidRequest)
	}
	concurrency := req.Concurrency
	switch {
	case concurrency == 0:
		concurrency = o.opts.DefaultConcurrency
	case concurrency < 0:
		return nil, fmt.Errorf("%w: concurrency must be positive", domain.ErrInvalidRequest)
	case concurrency > o.opts.MaxConcurrency:
		concurrency = o.opts.MaxConcurrency
	}

	targets, listErr, err := o.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	// The cancel func exists before the run is visible, so a CancelRun that
	// races creation is never lost.
	runCtx, cancel := context.WithCancel(o.baseCtx)
	r := newRun(runParams{
		id:          o.newID(),
		source:      req.Source,
		style:       style,
		maxSteps:    maxSteps,
		concurrency: concurrency,
		targets:     targets,
		subBuffer:   o.opts.SubscriberBuffer,
		onDrop:      o.metrics.SubscriberDropped,
		cancel:      cancel,
	})
	if err := o.registry.add(r); err != nil {
		cancel()
		return nil, err
	}
	o.metrics.RunCreated()

	log := o.logger.With().Str("run_id", r.id).Str("source", string(req.Source)).Logger()
	ticket := &domain.RunTicket{RunID: r.id, StreamURL: o.opts.StreamPrefix + r.id}
	o.startMirror(r, log)

	if listErr != nil {
		cancel()
		if _, err := r.fail(listErr.Error()); err != nil {
			return nil, err
		}
		o.metrics.RunTerminal(domain.RunFailed)
		log.Error().Err(listErr).Msg("run failed: target listing")
		ticket.Status = domain.RunFailed
		return ticket, nil
	}

	o.wg.Add(1)
	go o.execute(runCtx, cancel, r, log)

	log.Info().Int("targets", len(targets)).Int("concurrency", concurrency).Str("style", string(style)).Msg("run created")
	ticket.Status = domain.RunRunning
	return ticket, nil
}

// resolveTargets builds the target queue. listErr is set when an upstream
// lister failed; err is set when the request itself is invalid.
func (o *Orchestrator) resolveTargets(ctx context.Context, req domain.RunRequest) (targets []domain.Target, listErr error, err error) {
	switch req.Source {
	case domain.SourceCustom:
		for _, raw := range req.Custom.URLs {
			t, err := domain.NewTarget(raw)
			if err != nil {
				o.logger.Warn().Err(err).Str("url", raw).Msg("skipping invalid url")
				continue
			}
			targets = append(targets, t)
		}
		if len(targets) == 0 {
			return nil, nil, fmt.Errorf("%w: custom source needs at least one valid url", domain.ErrInvalidRequest)
		}
		return targets, nil, nil

	case domain.SourceYC, domain.SourceFile:
		lister, ok := o.listers[req.Source]
		if !ok || lister == nil {
			return nil, nil, fmt.Errorf("%w: source %q is not available", domain.ErrInvalidRequest, req.Source)
		}
		limit := req.YC.Limit
		if limit < 1 {
			limit = o.opts.DefaultYCLimit
		}
		targets, err := lister.List(ctx, ports.ListCriteria{Batch: req.YC.Batch, Limit: limit, Path: req.File.Path})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRequest) {
				return nil, nil, err
			}
			return nil, fmt.Errorf("list %s targets: %w", req.Source, err), nil
		}
		if len(targets) == 0 {
			return nil, nil, fmt.Errorf("%w: source %q returned no candidates", domain.ErrInvalidRequest, req.Source)
		}
		return targets, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidRequest, req.Source)
	}
}

func (o *Orchestrator) execute(ctx context.Context, cancel context.CancelFunc, r *run, log zerolog.Logger) {
	defer o.wg.Done()
	defer cancel()

	ctx, span := telemetry.StartRunSpan(ctx, r.id, len(r.targets))
	defer span.End()

	sched := NewScheduler(r.concurrency, o.opts.Retry, o.metrics, log)
	process := func(ctx context.Context, index int, target domain.Target) domain.Outcome {
		return o.processor.Process(ctx, Job{
			RunID:    r.id,
			Index:    index,
			Target:   target,
			Style:    r.style,
			MaxSteps: r.maxSteps,
		})
	}
	admit := func(int) {
		if err := r.markRunning(); err != nil {
			log.Error().Err(err).Msg("mark running")
		}
	}

	for outcome := range sched.Run(ctx, r.targets, process, admit) {
		if _, err := r.record(outcome); err != nil {
			log.Error().Err(err).Int("index", outcome.Index).Msg("record outcome")
		}
	}

	ev, err := r.finish()
	if err != nil {
		log.Error().Err(err).Msg("finish run")
		return
	}
	o.metrics.RunTerminal(domain.RunFinished)

	t := ev.(domain.TerminalEvent)
	log.Info().
		Int("done", t.Totals.Done).
		Int("failed", t.Totals.Failed).
		Bool("cancelled", t.Cancelled).
		Msg("run finished")
}

// startMirror forwards the run's events to the sink from a subscription of
// its own, so a slow sink lags and catches up from the log instead of holding
// up the collector.
func (o *Orchestrator) startMirror(r *run, log zerolog.Logger) {
	if o.opts.Sink == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		var last uint64
		for {
			sub := r.subscribe(context.Background(), last)
			for ev := range sub.Events() {
				last = ev.Sequence()
				o.mirror(ev, log)
			}
			if !errors.Is(sub.Err(), ErrSubscriberLagged) {
				return
			}
		}
	}()
}

func (o *Orchestrator) mirror(ev domain.Event, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := o.opts.Sink.PublishEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Uint64("seq", ev.Sequence()).Msg("mirror event")
	}
}

// GetRun returns a snapshot of the run including its outcomes so far.
func (o *Orchestrator) GetRun(_ context.Context, id string) (domain.RunSnapshot, error) {
	r, err := o.registry.get(id)
	if err != nil {
		return domain.RunSnapshot{}, err
	}
	return r.snapshot(true), nil
}

// ListRuns returns summaries of all runs, newest first.
func (o *Orchestrator) ListRuns(_ context.Context) []domain.RunSnapshot {
	runs := o.registry.list()
	out := make([]domain.RunSnapshot, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.snapshot(false))
	}
	return out
}

// CancelRun stops admission of further targets. In-flight targets finish and
// the run ends as finished. Cancelling a terminal run is a no-op.
func (o *Orchestrator) CancelRun(_ context.Context, id string) (domain.RunSnapshot, error) {
	r, err := o.registry.get(id)
	if err != nil {
		return domain.RunSnapshot{}, err
	}
	if r.requestCancel() {
		o.logger.Info().Str("run_id", id).Msg("run cancellation requested")
	}
	return r.snapshot(false), nil
}

// Subscribe opens an event stream for a run, replaying events with a
// sequence number greater than after. The subscription ends with ctx.
func (o *Orchestrator) Subscribe(ctx context.Context, id string, after uint64) (*Subscription, error) {
	r, err := o.registry.get(id)
	if err != nil {
		return nil, err
	}
	return r.subscribe(ctx, after), nil
}

// Wait blocks until the run reaches a terminal state.
func (o *Orchestrator) Wait(ctx context.Context, id string) (domain.RunSnapshot, error) {
	r, err := o.registry.get(id)
	if err != nil {
		return domain.RunSnapshot{}, err
	}
	select {
	case <-r.done:
		return r.snapshot(true), nil
	case <-ctx.Done():
		return domain.RunSnapshot{}, ctx.Err()
	}
}

// Shutdown cancels every active run and waits for in-flight targets.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
