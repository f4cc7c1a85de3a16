package faults

import "context"

type contextKey string

const (
	runIDKey contextKey = "run_id"
	stageKey contextKey = "stage"
	sceneKey contextKey = "scene"
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

// WithStage annotates context with the pipeline stage name.
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

// WithScene annotates context with the scene being processed.
func WithScene(ctx context.Context, scene string) context.Context {
	if scene == "" {
		return ctx
	}
	return context.WithValue(ctx, sceneKey, scene)
}

// SceneFromContext returns the scene name if present.
func SceneFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sceneKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
