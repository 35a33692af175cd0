package pipeline

import (
	"context"
	"log/slog"
	"time"

	"audiotagger/internal/asset"
	"audiotagger/internal/failures"
	"audiotagger/internal/logging"
	"audiotagger/internal/results"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Client is the subset of the analysis client the processor needs.
type Client interface {
	SubmitAsset(ctx context.Context, ref asset.Reference) (string, error)
	ExtractTags(ctx context.Context, handle string, types []tagtypes.Type) ([]tagtypes.Entry, error)
}

// Outcome is the result of processing one asset. Exactly one of Result and
// Failure is set.
type Outcome struct {
	Ref     asset.Reference
	Result  *results.Record
	Failure *failures.Record
	Elapsed time.Duration
}

// Succeeded reports whether the asset produced a stored record.
func (o Outcome) Succeeded() bool {
	return o.Result != nil
}

// Processor runs submit then extract for one asset and persists the record.
type Processor struct {
	client Client
	store  results.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor wires a processor to its client and result store.
func NewProcessor(client Client, store results.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		client: client,
		store:  store,
		logger: logging.NewComponentLogger(logger, "processor"),
		now:    time.Now,
	}
}

// Process tags ref with the requested types. Failures are reported in the
// Outcome and never abort the caller.
func (p *Processor) Process(ctx context.Context, ref asset.Reference, types []tagtypes.Type) Outcome {
	started := p.now()
	outcome := p.process(services.WithAsset(ctx, ref.String()), ref, types)
	outcome.Ref = ref
	outcome.Elapsed = p.now().Sub(started)
	return outcome
}

func (p *Processor) process(ctx context.Context, ref asset.Reference, types []tagtypes.Type) Outcome {
	uploadCtx := services.WithStage(ctx, string(failures.StageUpload))
	handle, err := p.client.SubmitAsset(uploadCtx, ref)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(uploadCtx, p.logger), "asset upload failed", "upload_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the file path or link and the API key"),
		)
		return failed(ref, "", failures.StageUpload, err)
	}

	extractCtx := services.WithStage(ctx, string(failures.StageExtract))
	logger := logging.WithContext(extractCtx, p.logger).With(logging.String("handle", handle))
	tags, err := p.client.ExtractTags(extractCtx, handle, types)
	if err != nil {
		logging.WarnWithContext(logger, "tag extraction failed", "extract_failure", logging.Error(err))
		return failed(ref, handle, failures.StageExtract, err)
	}

	record := results.Record{
		Tags:      tags,
		FileName:  ref.SourceName(),
		FeatureID: handle,
	}
	if err := p.store.Put(ctx, record); err != nil {
		logging.ErrorWithContext(logger, "persist result failed", "persist_failure", logging.Error(err))
		return failed(ref, handle, failures.StageExtract, err)
	}
	logger.Debug("asset tagged", logging.Int("tags", len(tags)))
	return Outcome{Result: &record}
}

func failed(ref asset.Reference, handle string, stage failures.Stage, err error) Outcome {
	return Outcome{Failure: &failures.Record{
		Source: ref.String(),
		Handle: handle,
		Stage:  stage,
		Cause:  err.Error(),
	}}
}
