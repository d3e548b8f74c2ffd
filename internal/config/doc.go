// Package config loads, normalizes, and validates livelink configuration.
//
// It reads the YAML configuration file (api, database, and user-info sections
// plus an optional output section), expands user paths, and rejects missing
// required keys before any run begins. Always obtain settings through this
// package so downstream code receives sanitized values and clear validation
// errors.
package config
