package difflog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gitlab.com/tozd/go/errors"
)

type FormatterSuite struct {
	suite.Suite
	original FormatterConfig
}

func TestFormatterSuite(t *testing.T) {
	suite.Run(t, new(FormatterSuite))
}

func (suite *FormatterSuite) SetupTest() {
	suite.original = GetFormatterConfig()
	config := suite.original
	config.EnableColors = false
	config.MultilineStacktrace = false
	SetFormatterConfig(config)
}

func (suite *FormatterSuite) TearDownTest() {
	SetFormatterConfig(suite.original)
}

func groupMap(v slog.Value) map[string]slog.Value {
	out := make(map[string]slog.Value)
	for _, a := range v.Group() {
		out[a.Key] = a.Value
	}
	return out
}

func (suite *FormatterSuite) TestTozdErrorWithDetails() {
	err := errors.WithDetails(errors.New("error with details"), "user_id", "12345", "attempts", 3)

	value, changed := TozdErrorFormatter()(nil, slog.Any("error", err))
	suite.Require().True(changed)
	suite.Require().Equal(slog.KindGroup, value.Kind())

	attrs := groupMap(value)
	suite.Equal("error with details", attrs["message"].String())
	suite.Equal(err, attrs["org_error"].Any())

	details := groupMap(attrs["details"])
	suite.Equal("12345", details["user_id"].String())
	suite.Contains(details, "attempts")

	stack := attrs["stacktrace"].String()
	suite.Contains(stack, "TestTozdErrorWithDetails")
	suite.Contains(stack, "difflog_formatter_test.go:")
	suite.NotContains(stack, "\x1b[")
}

func (suite *FormatterSuite) TestTozdErrorCause() {
	cause := errors.Base("disk full")
	err := errors.Wrap(cause, "save failed")

	value, changed := TozdErrorFormatter()(nil, slog.Any("error", err))
	suite.Require().True(changed)
	attrs := groupMap(value)
	suite.Equal("save failed", attrs["message"].String())
	suite.Equal("disk full", attrs["cause"].String())
}

func (suite *FormatterSuite) TestStackTraceLayout() {
	err := errors.New("deep")

	value, _ := TozdErrorFormatter()(nil, slog.Any("error", err))
	suite.Contains(groupMap(value)["stacktrace"].String(), " -> ")

	EnableMultilineStacktrace(true)
	value, _ = TozdErrorFormatter()(nil, slog.Any("error", err))
	stack := groupMap(value)["stacktrace"].String()
	suite.NotContains(stack, " -> ")
	suite.Contains(stack, "\n")
	suite.LessOrEqual(len(strings.Split(stack, "\n")), maxStackFrames)
}

func (suite *FormatterSuite) TestIgnoresPlainErrors() {
	_, changed := TozdErrorFormatter()(nil, slog.Any("error", os.ErrNotExist))
	suite.False(changed)
}

func (suite *FormatterSuite) TestErrorFormatter() {
	err := fmt.Errorf("close: %w", os.ErrClosed)

	value, changed := ErrorFormatter("err")(nil, slog.Any("err", err))
	suite.Require().True(changed)
	attrs := groupMap(value)
	suite.Equal("close: file already closed", attrs["message"].String())
	suite.Equal("*fmt.wrapError", attrs["type"].String())

	_, changed = ErrorFormatter("err")(nil, slog.Any("other", err))
	suite.False(changed)
}

func (suite *FormatterSuite) TestUnixTimestampFormatter() {
	formatter := UnixTimestampFormatter("timestamp")
	want := time.Unix(1700000000, 0).Format(time.RFC3339)

	for _, v := range []slog.Value{
		slog.Int64Value(1700000000),
		slog.IntValue(1700000000),
		slog.Float64Value(1700000000.7),
		slog.StringValue("1700000000"),
	} {
		got, changed := formatter(nil, slog.Attr{Key: "timestamp", Value: v})
		suite.True(changed)
		suite.Equal(want, got.String(), v.String())
	}

	for _, v := range []slog.Value{
		slog.Int64Value(0),
		slog.StringValue("yesterday"),
		slog.BoolValue(true),
	} {
		got, _ := formatter(nil, slog.Attr{Key: "timestamp", Value: v})
		suite.Equal(v.String(), got.String())
	}

	_, changed := formatter(nil, slog.Int64("created", 1700000000))
	suite.False(changed)
}
