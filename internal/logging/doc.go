// Package logging wraps log/slog with the handlers and field conventions used
// across slidecast.
//
// Two output formats are supported: "console" (human-oriented key=value lines
// with the component name folded into the message prefix) and "json". All
// components obtain their logger through NewComponentLogger so log lines are
// filterable by the component field.
package logging
