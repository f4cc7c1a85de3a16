// Package preflight provides readiness checks for the filesystem paths and
// external programs a tessera run depends on.
//
// These checks run in two contexts:
//   - The pipeline calls RunAll before scheduling any work and refuses to
//     start when a required check fails.
//   - The CLI "tessera check" command prints every result as a table.
//
// Checks for optional features (optimizer, manifest) are skipped when the
// feature is disabled.
package preflight
