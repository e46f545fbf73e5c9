// Package logger sets up structured JSON logging with log/slog and carries
// request- and item-scoped loggers through a context.Context.
package logger
