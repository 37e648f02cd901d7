// Package config loads, normalizes, and validates imxup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IMXUP_API_KEY. The Config type centralizes every knob the daemon and CLI
// need, so downstream code receives sanitized paths, canonical log formats,
// and clear validation errors.
package config
