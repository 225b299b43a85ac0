// Package logging provides structured logging for Roomkit.
//
// It wraps log/slog with configuration-driven level filtering, JSON or
// text output, and default service/version attributes on every record.
package logging
