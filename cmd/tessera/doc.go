// Package main hosts the tessera CLI.
//
// The Cobra command tree loads configuration, runs preflight checks, and
// drives the tile pipeline: run renders every matching scene into the
// configured sink, plan previews the pyramid each scene would produce, and
// check reports whether the environment is ready; logs and config inspect
// what a run left behind and what it will use. Pipeline behaviour lives in
// internal packages; commands here only wire and present it.
package main
