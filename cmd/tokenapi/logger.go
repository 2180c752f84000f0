package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

// slogLogger adapts slog to glog.Logger for the CLI.
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newCLILogger(w io.Writer, verbose bool) glog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slogLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		ctx:    context.Background(),
	}
}

func (l *slogLogger) Trace(msg string, args ...any) {
	l.logger.Log(l.ctx, slog.LevelDebug-4, msg, args...)
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &slogLogger{logger: l.logger, ctx: ctx}
}

var _ glog.Logger = (*slogLogger)(nil)
