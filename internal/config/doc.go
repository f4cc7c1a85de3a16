// Package config loads, normalizes, and validates tessera configuration data.
//
// It supplies defaults, locates the file (--config, TESSERA_CONFIG,
// ./tessera.toml, then the per-user config), expands tilde paths, and honours
// the TESSERA_OPTIMIZER_COMMAND fallback. The Config type centralizes every knob the
// pipeline and CLI need: scene discovery, tile geometry, encoding, the
// optional optimizer pass, per-stage parallelism, and the output sink.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical format names, and validation errors tagged with
// faults.ErrConfiguration.
package config
