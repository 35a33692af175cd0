package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	stageKey  contextKey = "stage"
	assetKey  contextKey = "asset"
	workerKey contextKey = "worker"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the asset stage name (upload, extract).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithAsset annotates context with the asset identifier being processed.
func WithAsset(ctx context.Context, asset string) context.Context {
	if asset == "" {
		return ctx
	}
	return context.WithValue(ctx, assetKey, asset)
}

// AssetFromContext returns the asset identifier if present.
func AssetFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(assetKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorker annotates context with the 1-based worker slot.
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WorkerFromContext returns the worker slot if present.
func WorkerFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workerKey).(int)
	return v, ok
}
