package difflog

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dianlight/difflog/render"
	slogformatter "github.com/samber/slog-formatter"
	"gitlab.com/tozd/go/errors"
)

// maxStackFrames bounds the frames written for one error.
const maxStackFrames = 20

// stackTraceFormatter writes frames as file:line function, painted with the
// source path palette.
func stackTraceFormatter(frames *runtime.Frames) string {
	colors := IsColorsEnabled()
	file := render.PathTerminal.Painter(colors)
	line := render.Deemphasized.Painter(colors)
	function := render.InfoStyle.Painter(colors)

	var stackLines []string
	for len(stackLines) < maxStackFrames {
		frame, more := frames.Next()
		stackLines = append(stackLines, fmt.Sprintf("%s:%s %s",
			file.Sprint(frame.File), line.Sprint(frame.Line), function.Sprint(frame.Function)))
		if !more {
			break
		}
	}

	if isMultilineStacktraceEnabled() {
		return strings.Join(stackLines, "\n")
	}
	return strings.Join(stackLines, " -> ")
}

func isMultilineStacktraceEnabled() bool {
	formatterConfigMu.RLock()
	defer formatterConfigMu.RUnlock()
	return formatterConfig.MultilineStacktrace
}

// ErrorFormatter turns a plain error in fieldName into a group:
//
//	error.message="could not close reader: file already closed" error.type=*errors.errorString
func ErrorFormatter(fieldName string) slogformatter.Formatter {
	return slogformatter.FormatByFieldType(fieldName, func(err error) slog.Value {
		return slog.GroupValue(
			slog.String("message", err.Error()),
			slog.String("type", reflect.TypeOf(err).String()),
			slog.Any("org_error", err),
		)
	})
}

// TozdErrorFormatter formats gitlab.com/tozd/go/errors values with their
// details, cause and a colored stack trace.
func TozdErrorFormatter() slogformatter.Formatter {
	return slogformatter.FormatByType(func(v errors.E) slog.Value {
		attrs := []slog.Attr{slog.String("message", v.Error())}

		if details := errors.Details(v); len(details) > 0 {
			var detailAttrs []any
			for k, val := range details {
				detailAttrs = append(detailAttrs, slog.Any(k, val))
			}
			attrs = append(attrs, slog.Group("details", detailAttrs...))
		}

		if stack := v.StackTrace(); len(stack) > 0 {
			attrs = append(attrs, slog.String("stacktrace", stackTraceFormatter(runtime.CallersFrames(stack))))
		}

		if cause := errors.Cause(v); cause != nil && cause != v {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}

		attrs = append(attrs, slog.Any("org_error", v))
		return slog.GroupValue(attrs...)
	})
}

// UnixTimestampFormatter renders Unix second timestamps stored under key as
// times in the configured format.
func UnixTimestampFormatter(key string) slogformatter.Formatter {
	return slogformatter.FormatByKey(key, func(v slog.Value) slog.Value {
		var timestamp int64
		switch val := v.Any().(type) {
		case int64:
			timestamp = val
		case int:
			timestamp = int64(val)
		case float64:
			timestamp = int64(val)
		case string:
			parsed, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return v
			}
			timestamp = parsed
		default:
			return v
		}
		if timestamp <= 0 {
			return v
		}
		return slog.StringValue(time.Unix(timestamp, 0).Format(GetFormatterConfig().TimeFormat))
	})
}
