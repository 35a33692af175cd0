package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"audiotagger/internal/asset"
	"audiotagger/internal/failures"
	"audiotagger/internal/logging"
	"audiotagger/internal/results"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Config controls the worker pool.
type Config struct {
	Workers int
	// TestMode pins the pool to one worker; the sandbox API rejects
	// parallel uploads.
	TestMode bool
}

// workersFor returns the pool size used for n assets.
func (c Config) workersFor(n int) int {
	workers := c.Workers
	if c.TestMode {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Observer is notified once per finished asset, from a single goroutine.
type Observer interface {
	ObserveOutcome(ctx context.Context, outcome Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, outcome Outcome)

// ObserveOutcome calls f.
func (f ObserverFunc) ObserveOutcome(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// Summary aggregates a run.
type Summary struct {
	Total    int
	Workers  int
	Results  []results.Record
	Failures []failures.Record
	Elapsed  time.Duration
}

// Succeeded is the number of stored records.
func (s Summary) Succeeded() int { return len(s.Results) }

// Failed is the number of failure records.
func (s Summary) Failed() int { return len(s.Failures) }

// Runner executes a batch of assets with bounded parallelism.
type Runner struct {
	cfg       Config
	processor *Processor
	failures  *failures.Log
	observers []Observer
	logger    *slog.Logger
}

// NewRunner builds a runner. failureLog may be nil when failures only need to
// be reported through the Summary.
func NewRunner(cfg Config, processor *Processor, failureLog *failures.Log, logger *slog.Logger, observers ...Observer) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		processor: processor,
		failures:  failureLog,
		observers: observers,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run processes every reference and waits for all workers to finish.
// Invalid input fails before any asset is dispatched. When ctx is cancelled
// undispatched assets are skipped and ctx.Err() is returned alongside the
// partial summary.
func (r *Runner) Run(ctx context.Context, refs []asset.Reference, types []tagtypes.Type) (Summary, error) {
	if err := validateRun(refs, types); err != nil {
		return Summary{}, err
	}

	started := time.Now()
	workers := r.cfg.workersFor(len(refs))
	summary := Summary{Total: len(refs), Workers: workers}
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("tagging started",
		logging.Int("assets", len(refs)),
		logging.Int("workers", workers),
		logging.Any("tags", tagtypes.Names(types)),
	)

	jobs := make(chan asset.Reference)
	outcomes := make(chan Outcome)

	go func() {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case <-ctx.Done():
				return
			case jobs <- ref:
			}
		}
	}()

	var wg sync.WaitGroup
	for id := 1; id <= workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerCtx := services.WithWorker(ctx, id)
			for ref := range jobs {
				outcomes <- r.processor.Process(workerCtx, ref, types)
			}
		}(id)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	sampler := logging.NewProgressSampler(10)
	done := 0
	for outcome := range outcomes {
		done++
		r.collect(ctx, &summary, outcome)
		if sampler.ShouldLog(done, len(refs)) {
			logger.Info("tagging progress",
				logging.Int("done", done),
				logging.Int("total", len(refs)),
				logging.Int("failed", summary.Failed()),
			)
		}
	}

	summary.Elapsed = time.Since(started)
	logger.Info("tagging finished",
		logging.Int("succeeded", summary.Succeeded()),
		logging.Int("failed", summary.Failed()),
		logging.Duration("elapsed", summary.Elapsed),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("tagging interrupted after %d of %d assets: %w", done, len(refs), err)
	}
	return summary, nil
}

func (r *Runner) collect(ctx context.Context, summary *Summary, outcome Outcome) {
	if outcome.Result != nil {
		summary.Results = append(summary.Results, *outcome.Result)
	} else if outcome.Failure != nil {
		summary.Failures = append(summary.Failures, *outcome.Failure)
		if r.failures != nil {
			if err := r.failures.Append(*outcome.Failure); err != nil {
				logging.WarnWithContext(r.logger, "failure log append failed", "failure_log",
					logging.String("asset", outcome.Failure.Source),
					logging.Error(err),
					logging.String(logging.FieldImpact, "failure kept in run summary only"),
				)
			}
		}
	}
	for _, observer := range r.observers {
		observer.ObserveOutcome(ctx, outcome)
	}
}

func validateRun(refs []asset.Reference, types []tagtypes.Type) error {
	if len(types) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "", "no tag types requested", nil)
	}
	for _, t := range types {
		if !t.Valid() {
			return services.Wrap(services.ErrValidation, "pipeline", "", fmt.Sprintf("%q is not a valid tag type", t), nil)
		}
	}
	if len(refs) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "", "no assets to process", nil)
	}
	return nil
}
