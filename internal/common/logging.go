package common

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel   = "LEDGATE_LOG_LEVEL"
	EnvLogNoColor = "LEDGATE_LOG_NOCOLOR"
)

var (
	logMu  sync.RWMutex
	logger = newLogger(os.Stderr, zerolog.InfoLevel, false)

	testOnce sync.Once
)

func newLogger(w io.Writer, level zerolog.Level, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "ledgate").Logger()
}

// SetOutput points the package logger at w. The level comes from
// LEDGATE_LOG_LEVEL when set, info otherwise.
func SetOutput(w io.Writer) {
	level := zerolog.InfoLevel
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	noColor := w != os.Stderr && w != os.Stdout
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor))); err == nil {
		noColor = v
	}
	logMu.Lock()
	logger = newLogger(w, level, noColor)
	logMu.Unlock()
}

// ConfigureTests switches to debug output without colors once per process.
func ConfigureTests() {
	testOnce.Do(func() {
		logMu.Lock()
		logger = newLogger(os.Stderr, zerolog.DebugLevel, true)
		logMu.Unlock()
	})
}

// Logger returns the shared zerolog logger for callers that want fields.
func Logger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

func Logf(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	l := Logger()
	l.Fatal().Msgf(format, args...)
}

// RotateOptions configures a size-rotated log file.
type RotateOptions struct {
	Directory  string
	Name       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// RotatingFile creates the log directory and returns a rotating writer.
func RotatingFile(opts RotateOptions) (io.WriteCloser, error) {
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "ledgate.log"
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(opts.Directory, name),
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     opts.MaxAgeDays,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}, nil
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
