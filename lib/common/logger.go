package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// Loggers lists the names of all package loggers used by jstore
var Loggers = []string{"cli", "store", "engine", "ingest", "join"}

// jstoreLogger implements the ILogger interface and renders through slog
type jstoreLogger struct {
	name   string
	level  logger.LogLevel
	logger *slog.Logger
}

func (l *jstoreLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *jstoreLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log(slog.LevelDebug, format, args...)
	}
}

func (l *jstoreLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log(slog.LevelInfo, format, args...)
	}
}

func (l *jstoreLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log(slog.LevelWarn, format, args...)
	}
}

func (l *jstoreLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log(slog.LevelError, format, args...)
	}
}

func (l *jstoreLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.log(slog.LevelError, "%s", message)
	panic(message)
}

func (l *jstoreLogger) log(level slog.Level, format string, args ...interface{}) {
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...), "pkg", l.name)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// logOutput is where all loggers write to. stdout is reserved for JSON-Lines output.
var logOutput io.Writer = os.Stderr

// newHandler creates the colored slog handler all package loggers share
func newHandler(w io.Writer) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug, // filtering is done per package logger
		TimeFormat: "15:04:05.000",
	})
}

// CreateLogger implements the dragonboat logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	return &jstoreLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: slog.New(newHandler(logOutput)),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

var factoryOnce sync.Once

// InitLoggers installs the custom logger factory and sets the level of all jstore loggers.
// It is safe to call InitLoggers more than once; only the level changes on later calls.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range Loggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
