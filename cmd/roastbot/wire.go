package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"roastbot/internal/adapters/browserless"
	"roastbot/internal/adapters/datauri"
	"roastbot/internal/adapters/downloader"
	"roastbot/internal/adapters/grok"
	"roastbot/internal/adapters/localstorage"
	"roastbot/internal/adapters/natsbus"
	"roastbot/internal/adapters/ristretto"
	"roastbot/internal/adapters/s3store"
	"roastbot/internal/adapters/targetfile"
	"roastbot/internal/adapters/ycdirectory"
	"roastbot/internal/config"
	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
	"roastbot/internal/metrics"
	"roastbot/internal/service"
)

// app is the assembled object graph shared by serve and run.
type app struct {
	orch    *service.Orchestrator
	metrics *metrics.Metrics
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type pageExtractor interface {
	ports.Extractor
	ports.PageSource
}

// build wires adapters from cfg. withFile also registers the YAML target
// file lister, which only makes sense for local invocations.
func build(ctx context.Context, cfg config.Config, withFile bool, logger zerolog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	var extractor pageExtractor
	if cfg.BrowserlessToken != "" {
		bl, err := browserless.NewClient(cfg.BrowserlessURL, cfg.BrowserlessToken, cfg.ExtractTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("browserless: %w", err)
		}
		extractor = bl
	} else {
		logger.Warn().Msg("BROWSERLESS_TOKEN not set; fetching pages directly without screenshots")
		extractor = downloader.NewHTTPDownloader(cfg.ExtractTimeout)
	}

	critic, err := buildCritic(cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var sink ports.EventSink
	if cfg.NATSURL != "" {
		bus, err := natsbus.New(cfg.NATSURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.closers = append(a.closers, bus.Close)
		sink = bus
	}

	yc, err := ycdirectory.NewLister(extractor, "", logger)
	if err != nil {
		a.close()
		return nil, err
	}
	listers := map[domain.Source]ports.Lister{domain.SourceYC: yc}
	if withFile {
		listers[domain.SourceFile] = targetfile.Lister{}
	}

	proc := service.NewProcessor(extractor, critic, store, service.ProcessorConfig{
		ExtractTimeout:  cfg.ExtractTimeout,
		CritiqueTimeout: cfg.CritiqueTimeout,
		StoreTimeout:    cfg.StoreTimeout,
	}, a.metrics, logger)

	a.orch = service.NewOrchestrator(proc, listers, service.Options{
		DefaultConcurrency: cfg.Concurrency,
		MaxConcurrency:     cfg.MaxConcurrency,
		SubscriberBuffer:   cfg.SubscriberBuffer,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
			Reasons:     []string{domain.ReasonExtraction},
		},
		Sink: sink,
	}, a.metrics, logger)
	return a, nil
}

func buildCritic(cfg config.Config, a *app) (ports.Critic, error) {
	if cfg.GrokAPIKey == "" {
		return nil, errors.New("GROK_API_KEY is required")
	}
	client, err := grok.NewClient(grok.Config{
		APIKey:  cfg.GrokAPIKey,
		Model:   cfg.GrokModel,
		BaseURL: cfg.GrokBaseURL,
		Timeout: cfg.CritiqueTimeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.CritiqueCacheMB <= 0 {
		return client, nil
	}
	cached, err := ristretto.NewCachingCritic(client, int64(cfg.CritiqueCacheMB)<<20, cfg.CritiqueCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("critique cache: %w", err)
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

func buildStore(ctx context.Context, cfg config.Config) (ports.ArtifactStore, error) {
	switch cfg.ArtifactBackend {
	case config.BackendLocal:
		return localstorage.NewLocalStorage(cfg.ArtifactDir, cfg.ArtifactBaseURL), nil
	case config.BackendS3:
		st, err := s3store.New(ctx, s3store.Config{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			DisableTLS:     cfg.S3DisableTLS,
			ForcePathStyle: cfg.S3ForcePathStyle,
			PresignTTL:     cfg.S3PresignTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return st, nil
	default:
		return datauri.Store{}, nil
	}
}
