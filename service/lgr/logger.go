package lgr

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"
)

// Logger is the process-wide structured logger. It writes JSON to stdout and
// to a size-rotated file.
var Logger *slog.Logger

func init() {
	rotator := &lumberjack.Logger{
		Filename:   logFile(),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotator), &slog.HandlerOptions{
		Level:       level(),
		ReplaceAttr: replaceAttr,
	})

	Logger = slog.New(handler)
}

func logFile() string {
	if f := os.Getenv("LOG_FILE"); f != "" {
		return f
	}
	return filepath.Join("logs", "sentry.log")
}

func level() slog.Level {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// replaceAttr expands error attrs into a message plus stack trace when the
// error carries one.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}

	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}

	groupValues := []slog.Attr{
		slog.String("msg", err.Error()),
	}
	if frames := marshalStack(err); frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}

	a.Value = slog.GroupValue(groupValues...)
	return a
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		s[i] = stackFrame{
			Func:   filepath.Base(v.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Line:   v.Line,
		}
	}

	return s
}
