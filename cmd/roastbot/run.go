package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"roastbot/internal/config"
	"roastbot/internal/core/domain"
	"roastbot/internal/logging"
	"roastbot/internal/service"
)

type runFlags struct {
	urls        []string
	targets     string
	ycBatch     string
	ycLimit     int
	style       string
	maxSteps    int
	concurrency int
}

func newRunCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Roast one batch in-process and print the outcomes",
		Example: `  roastbot run --url acme.io --url https://beta.dev
  roastbot run --targets targets.yaml --style kind
  roastbot run --yc-batch S24 --yc-limit 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringSliceVar(&f.urls, "url", nil, "Landing page URL to roast (repeatable)")
	cmd.Flags().StringVar(&f.targets, "targets", "", "YAML file listing targets")
	cmd.Flags().StringVar(&f.ycBatch, "yc-batch", "", "YC batch to list, e.g. S24")
	cmd.Flags().IntVar(&f.ycLimit, "yc-limit", 0, "Maximum companies to take from the YC directory")
	cmd.Flags().StringVar(&f.style, "style", "", "Roast style: spicy, kind or deadpan")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Navigation step budget per page")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Pages processed at once")
	cmd.MarkFlagsMutuallyExclusive("url", "targets", "yc-batch")
	return cmd
}

func (f runFlags) request() domain.RunRequest {
	req := domain.RunRequest{
		Style:       f.style,
		MaxSteps:    f.maxSteps,
		Concurrency: f.concurrency,
	}
	switch {
	case f.targets != "":
		req.Source = domain.SourceFile
		req.File.Path = f.targets
	case len(f.urls) > 0:
		req.Source = domain.SourceCustom
		req.Custom.URLs = f.urls
	default:
		req.Source = domain.SourceYC
		req.YC = domain.YCParams{Batch: f.ycBatch, Limit: f.ycLimit}
	}
	return req
}

func runBatch(ctx context.Context, out io.Writer, f runFlags) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, "console")

	a, err := build(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ticket, err := a.orch.CreateRun(ctx, f.request())
	if err != nil {
		return err
	}

	// The signal context only cancels the run; the stream keeps going so
	// in-flight outcomes and the terminal event are still printed.
	stream := context.WithoutCancel(ctx)
	stop := onInterrupt(ctx, logger, func() {
		_, _ = a.orch.CancelRun(stream, ticket.RunID)
	})
	defer stop()

	if err := follow(stream, out, a.orch, ticket.RunID); err != nil {
		return err
	}

	snap, err := a.orch.Wait(stream, ticket.RunID)
	if err != nil {
		return err
	}
	printSummary(out, snap)
	if snap.State == domain.RunFailed {
		return fmt.Errorf("run failed: %s", snap.Error)
	}
	return nil
}

// onInterrupt calls cancel once ctx ends. It reports through the logger, never
// the output writer, which follow owns. The returned stop waits for the
// watcher to exit.
func onInterrupt(ctx context.Context, logger zerolog.Logger, cancel func()) (stop func()) {
	finished := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			logger.Warn().Msg("cancelling; waiting for in-flight pages")
			cancel()
		case <-finished:
		}
	}()
	return func() {
		close(finished)
		<-exited
	}
}

// follow prints events until the terminal one, resubscribing after a drop.
func follow(ctx context.Context, out io.Writer, orch *service.Orchestrator, runID string) error {
	var last uint64
	for {
		sub, err := orch.Subscribe(ctx, runID, last)
		if err != nil {
			return err
		}
		for ev := range sub.Events() {
			last = ev.Sequence()
			if oe, ok := ev.(domain.OutcomeEvent); ok {
				printOutcome(out, oe.Outcome)
			}
		}
		if !errors.Is(sub.Err(), service.ErrSubscriberLagged) {
			return nil
		}
	}
}

func printOutcome(out io.Writer, o domain.Outcome) {
	if o.Status == domain.OutcomeDone {
		fmt.Fprintf(out, "[done]   %-28s %s\n", o.Target.Name, o.Roast)
		if o.ScreenshotURL != "" && len(o.ScreenshotURL) < 200 {
			fmt.Fprintf(out, "         screenshot: %s\n", o.ScreenshotURL)
		}
		return
	}
	fmt.Fprintf(out, "[failed] %-28s %s: %s\n", o.Target.Name, o.ErrorReason, o.ErrorDetail)
}

func printSummary(out io.Writer, snap domain.RunSnapshot) {
	t := snap.Totals
	fmt.Fprintf(out, "\nrun %s %s: %d total, %d done, %d failed", snap.ID, snap.State, t.Total, t.Done, t.Failed)
	if snap.Cancelled {
		fmt.Fprintf(out, ", %d not started (cancelled)", t.Pending)
	}
	fmt.Fprintln(out)
}
