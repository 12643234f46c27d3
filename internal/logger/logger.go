package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var programLevel = new(slog.LevelVar)

// Counters of warn and error records, incremented before sampling.
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

// Options configures Setup.
type Options struct {
	Level string // TRACE, DEBUG, INFO, WARN, ERROR or FATAL
	// Format is "json" (default) or "text".
	Format string
	// SampleRate emits 1 of every SampleRate warn/error records. Values of
	// one or less emit all of them.
	SampleRate int
	Output     io.Writer
}

// Setup builds the process logger and installs it as slog's default. An
// unknown level falls back to INFO and is reported in the returned error
// together with the usable logger.
func Setup(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if opts.Level == "" {
		level, err = LevelInfo, nil
	}
	programLevel.Set(level)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{
		Level:       programLevel,
		ReplaceAttr: replaceLevelNames,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, hopts)
	} else {
		handler = slog.NewJSONHandler(out, hopts)
	}

	l := slog.New(NewSamplingHandler(handler, opts.SampleRate))
	slog.SetDefault(l)
	return l, err
}

// replaceLevelNames renders the custom levels as TRACE and FATAL instead of
// DEBUG-4 and ERROR+4.
func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case level < LevelDebug:
		a.Value = slog.StringValue("TRACE")
	case level >= LevelFatal:
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// SamplingHandler passes 1 of every rate warn and error records to the
// wrapped handler. Records below WARN are never sampled, nor is FATAL.
type SamplingHandler struct {
	handler slog.Handler
	rate    int
	sample  func(n int) bool
}

// NewSamplingHandler wraps h.
func NewSamplingHandler(h slog.Handler, rate int) *SamplingHandler {
	return &SamplingHandler{
		handler: h,
		rate:    rate,
		sample:  func(n int) bool { return rand.Intn(n) == 0 },
	}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SamplingHandler) Handle(ctx context.Context, r slog.Record) error {
	switch {
	case r.Level >= LevelFatal:
		return h.handler.Handle(ctx, r)
	case r.Level >= LevelError:
		TotalErrors.Add(1)
	case r.Level >= LevelWarning:
		TotalWarnings.Add(1)
	default:
		return h.handler.Handle(ctx, r)
	}
	if h.rate > 1 && !h.sample(h.rate) {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{handler: h.handler.WithAttrs(attrs), rate: h.rate, sample: h.sample}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{handler: h.handler.WithGroup(name), rate: h.rate, sample: h.sample}
}

// Fatal logs a fatal-level message and exits (always logged, never sampled)
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}
