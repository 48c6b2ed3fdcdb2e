package initializer

import (
	"io"
	"log/slog"
	"os"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	errorColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	infoColor  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warnColor  = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	debugColor = lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}
	// keys worth spotting while following a top-up through the logs
	sagaColor = lipgloss.AdaptiveColor{Light: "#0288D1", Dark: "#4FC3F7"}
)

func logStyles() *log.Styles {
	styles := log.DefaultStyles()
	levels := []struct {
		level  log.Level
		marker string
		color  lipgloss.AdaptiveColor
	}{
		{log.ErrorLevel, "❌", errorColor},
		{log.WarnLevel, "⚠️", warnColor},
		{log.InfoLevel, "ℹ️", infoColor},
		{log.DebugLevel, "🐛", debugColor},
	}
	for _, l := range levels {
		styles.Levels[l.level] = lipgloss.NewStyle().
			SetString(l.marker).
			Bold(true).
			Padding(0, 1).
			Foreground(l.color)
	}

	keys := map[string]lipgloss.AdaptiveColor{
		"error":           errorColor,
		"warn":            warnColor,
		"component":       infoColor,
		"handler":         infoColor,
		"saga_id":         sagaColor,
		"correlation_key": sagaColor,
		"request_id":      sagaColor,
		"chain_seq":       sagaColor,
		"prefix":          debugColor,
		"caller":          debugColor,
		"time":            debugColor,
	}
	for k, c := range keys {
		styles.Keys[k] = lipgloss.NewStyle().Foreground(c)
		styles.Values[k] = lipgloss.NewStyle().Bold(true)
	}
	return styles
}

func newLogger(w io.Writer, cfg *config.Log) *log.Logger {
	if cfg == nil {
		cfg = &config.Log{Format: "text"}
	}
	formatters := map[string]log.Formatter{
		"json":   log.JSONFormatter,
		"text":   log.TextFormatter,
		"logfmt": log.LogfmtFormatter,
	}
	formatter, ok := formatters[cfg.Format]
	if !ok {
		formatter = log.TextFormatter
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(logStyles())
	return logger
}

// setupLogger installs the charmbracelet handler as the process slog default.
func setupLogger(cfg *config.Log) *slog.Logger {
	slogger := slog.New(newLogger(os.Stdout, cfg))
	slog.SetDefault(slogger)
	return slogger
}
