package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
	jsonOutput bool
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

// SetFormat switches between "text" and "json" records. It takes effect on
// the next SetOutput.
func SetFormat(format string) {
	loggerMu.Lock()
	jsonOutput = strings.EqualFold(strings.TrimSpace(format), "json")
	loggerMu.Unlock()
}

func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Level() string {
	return strings.ToLower(levelVar.Level().String())
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Scoped carries fixed attributes, e.g. the symbol a worker owns. It resolves
// the base logger on every call so SetOutput still applies.
type Scoped struct {
	attrs []any
}

func With(args ...any) *Scoped {
	return &Scoped{attrs: args}
}

func (s *Scoped) With(args ...any) *Scoped {
	merged := make([]any, 0, len(s.attrs)+len(args))
	merged = append(merged, s.attrs...)
	merged = append(merged, args...)
	return &Scoped{attrs: merged}
}

func (s *Scoped) l() *slog.Logger { return activeLogger().With(s.attrs...) }

func (s *Scoped) Debugf(format string, v ...any) { s.l().Debug(fmt.Sprintf(format, v...)) }
func (s *Scoped) Infof(format string, v ...any)  { s.l().Info(fmt.Sprintf(format, v...)) }
func (s *Scoped) Warnf(format string, v ...any)  { s.l().Warn(fmt.Sprintf(format, v...)) }
func (s *Scoped) Errorf(format string, v ...any) { s.l().Error(fmt.Sprintf(format, v...)) }

func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
