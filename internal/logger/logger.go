package logger

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/golang-cz/devslog"
)

type Logger struct {
	log *slog.Logger
}

func Init(prodEnv bool) Logger {
	slogOpts := &slog.HandlerOptions{}

	if !prodEnv {
		slogOpts.Level = slog.LevelDebug
	}

	// new logger with options
	opts := &devslog.Options{
		HandlerOptions:    slogOpts,
		MaxSlicePrintSize: 4,
		SortKeys:          true,
		NewLineAfterLog:   true,
	}

	logger := slog.New(devslog.NewHandler(os.Stdout, opts))

	slog.SetDefault(logger)

	return Logger{log: logger}
}

// example Info("watch", "Address", "0xabc", "Count", "3")
func (l Logger) Info(message string, args ...any) {
	l.print(slog.LevelInfo, message, args...)
}

func (l Logger) Warn(message string, args ...any) {
	l.print(slog.LevelWarn, message, args...)
}

// example Error("sweep failed", "TxHash", hash, "Error", err.Error())
func (l Logger) Error(message string, args ...any) {
	l.print(slog.LevelError, message, args...)
}

func (l Logger) Debug(message string, args ...any) {
	l.print(slog.LevelDebug, message, args...)
}

func (l Logger) print(level slog.Level, message string, args ...any) {
	_, file, line, _ := runtime.Caller(2)
	args = append(args, "source", file+":"+strconv.Itoa(line))

	switch level {
	case slog.LevelError:
		l.log.Error(message, args...)
	case slog.LevelWarn:
		l.log.Warn(message, args...)
	case slog.LevelInfo:
		l.log.Info(message, args...)
	case slog.LevelDebug:
		l.log.Debug(message, args...)
	}
}
