// Package logger carries a logrus entry through context so every component
// logs with the session and task fields of the call that reached it.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// G returns the logger bound to ctx, or L when none is bound.
	G = GetLogger
	// L is the process-wide fallback entry.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// WithFields binds a child of the current logger carrying fields.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(fields))
}

func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	applyFormat(l, "fmt")
	return l
}

func applyFormat(l *logrus.Logger, format string) {
	if format == "json" {
		l.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(lvl)
	return nil
}

// SetLogFormat accepts "json"; anything else selects the text formatter.
func SetLogFormat(format string) {
	applyFormat(L.Logger, format)
}

func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
