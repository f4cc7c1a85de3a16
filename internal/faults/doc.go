// Package faults defines the error markers and context annotations shared by
// every tile pipeline stage.
//
// Key responsibilities:
//   - Sentinel markers (configuration, resource, render, external tool,
//     output) plus the Wrap helper that attaches stage and operation detail
//     while keeping the marker reachable through errors.Is.
//   - Context helpers that stamp run IDs, stage names, and scene names so
//     log records and errors carry the same correlation fields.
//
// Classify errors with Recoverable before deciding whether a failure may be
// isolated to one scene or must abort the run.
package faults
