package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newHandlers builds the pair every lenny logger fans out to: terse text
// for the terminal, JSON with source locations for the log file so query
// routing and retry decisions can be reconstructed after the fact.
func newHandlers(stderr, file io.Writer, level slog.Level) (slog.Handler, slog.Handler) {
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}).WithAttrs([]slog.Attr{slog.String("app", "lenny")})
	return textHandler, jsonHandler
}

// SetupLogger creates the session logger: text to stderr, JSON appended
// to logFile. Returns the logger and a cleanup function to close the
// file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// An unwritable log file must not block startup.
		textHandler, _ := newHandlers(os.Stderr, io.Discard, level)
		logger := slog.New(textHandler)
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}

	textHandler, jsonHandler := newHandlers(os.Stderr, file, level)
	return slog.New(slogmulti.Fanout(textHandler, jsonHandler)), file.Close
}

// SetupLoggerWithWriters builds the same fanout over caller-supplied
// writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	textHandler, jsonHandler := newHandlers(stderr, file, level)
	return slog.New(slogmulti.Fanout(textHandler, jsonHandler))
}
