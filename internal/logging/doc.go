// Package logging constructs the slog loggers used across imxup.
//
// It maps config values (level, format, log directory) onto handlers, offers
// a human-readable console handler alongside JSON output, and exposes small
// attr helpers so call sites stay terse. Components receive a *slog.Logger
// and never construct handlers themselves.
package logging
