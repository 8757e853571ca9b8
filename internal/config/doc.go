// Package config loads, normalizes, and validates docintake configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANTHROPIC_API_KEY and CLIENT_NAME. The Config type centralizes the worker
// invocation, the content/metadata tree roots, and the checkpoint location so
// the supervisor and tree manager are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
