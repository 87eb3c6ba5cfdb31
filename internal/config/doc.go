// Package config loads, normalizes, and validates slidecast's TOML
// configuration.
//
// Lookup order: explicit --config path, ~/.config/slidecast/config.toml,
// then ./slidecast.toml. Missing files fall back to Default(). All path
// fields are expanded (~, relative) during Load so downstream code can use
// them verbatim.
package config
