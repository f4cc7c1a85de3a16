// Package pipeline schedules tile production.
//
// A run is a fixed chain of stages joined by bounded channels:
//
//	select → load → render → encode → [optimize] → output
//
// Each stage runs a fixed number of workers and closes its output channel
// once every worker has returned, so completion flows downstream without
// extra signalling. The render stage leases one renderer per scene from the
// render.Pool, which is the primary admission control: no more scenes are in
// memory than there are renderers. The first unhandled fault cancels the
// shared errgroup context and every stage unwinds, releasing leases and
// deleting optimizer temp files on the way out.
//
// With failure_policy = "skip_scene", resource and render faults scoped to a
// single scene are logged and recorded in Result.SkippedScenes instead.
//
// Counters live in a progress.Tracker owned by the Scheduler, so concurrent
// schedulers never share state.
package pipeline
