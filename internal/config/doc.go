// Package config loads, normalizes, and validates audiotagger configuration.
//
// Load applies defaults, decodes TOML from ~/.config/audiotagger/config.toml
// (or ./audiotagger.toml), expands user paths, and falls back to
// AUDIOTAGGER_API_KEY for the credential after reading any .env files in the
// working directory. Validation failures wrap services.ErrConfiguration so
// the CLI exits with a usage status before any network activity.
package config
