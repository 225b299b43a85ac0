// Package config loads and validates Roomkit configuration.
//
// Configuration comes from a YAML file with environment variable overrides
// (ROOMKIT_* pattern). Defaults are applied first, then the file, then the
// environment, and the merged result is validated before use.
package config
