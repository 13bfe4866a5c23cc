// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// After the file is parsed, MMO_* environment variables override individual fields
// (see the env tags on the config structs).
package config
