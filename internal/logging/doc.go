// Package logging builds the slog loggers tessera runs with.
//
// A logger has one human-facing handler (console or JSON) and, when a log
// file is configured, a JSON-lines handler behind a fan-out so every record
// also lands in tessera.log for `tessera logs`. Context helpers tag records
// with run_id, stage and scene; WarnWithContext and ErrorWithContext add the
// incident fields (event_type, error_hint, impact, error_kind) operators
// filter on.
package logging
