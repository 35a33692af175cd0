package workflow

import (
	"context"
	"log/slog"

	"audiotagger/internal/failures"
	"audiotagger/internal/ledger"
	"audiotagger/internal/logging"
	"audiotagger/internal/metrics"
	"audiotagger/internal/pipeline"
)

type metricsObserver struct {
	recorder *metrics.Recorder
}

func (o metricsObserver) ObserveOutcome(_ context.Context, outcome pipeline.Outcome) {
	label := metrics.OutcomeSuccess
	if f := outcome.Failure; f != nil {
		label = metrics.OutcomeUploadFailure
		if f.Stage == failures.StageExtract {
			label = metrics.OutcomeExtractFailure
		}
	}
	o.recorder.ObserveAsset(label, outcome.Elapsed)
}

type ledgerObserver struct {
	store  *ledger.Store
	runID  string
	logger *slog.Logger
}

func (o ledgerObserver) ObserveOutcome(ctx context.Context, outcome pipeline.Outcome) {
	row := ledger.Outcome{Source: outcome.Ref.String(), Succeeded: outcome.Succeeded()}
	if outcome.Result != nil {
		row.Handle = outcome.Result.FeatureID
	}
	if f := outcome.Failure; f != nil {
		row.Handle = f.Handle
		row.Stage = string(f.Stage)
		row.Cause = f.Cause
	}
	if err := o.store.RecordOutcome(context.WithoutCancel(ctx), o.runID, row); err != nil {
		o.logger.Warn("record asset outcome", logging.String("asset", row.Source), logging.Error(err))
	}
}
