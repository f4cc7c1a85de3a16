// Package logs reads the tessera run log for `tessera logs`.
//
// Last returns the final lines of the file with bounded memory, and Follow
// polls from a byte offset until its context ends, so a second terminal can
// watch a long run. Both accept an optional line filter.
package logs
