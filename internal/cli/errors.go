package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/randalmurphal/promptfinder/internal/config"
	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is a PFError, it uses the user-friendly format.
func PrintError(err error) {
	printError(os.Stderr, err)
}

func printError(w io.Writer, err error) {
	if pfErr := pferrors.AsPFError(err); pfErr != nil {
		_, _ = fmt.Fprintln(w, pfErr.UserMessage())
		if verbose {
			_, _ = fmt.Fprintf(w, "\nCode: %s\n", pfErr.Code)
			if pfErr.Cause != nil {
				_, _ = fmt.Fprintf(w, "Cause: %v\n", pfErr.Cause)
			}
		}
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// setupLogger installs the default slog logger on stderr.
func setupLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
