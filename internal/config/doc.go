// Package config loads, normalizes, and validates shuttle configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SHUTTLE_API_TOKEN environment
// fallback. Download engine defaults live here too; every one of them can be
// overridden per mission at creation time.
package config
