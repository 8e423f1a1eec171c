package difflog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" info , app::db=trace,app::db::pool=OFF, metrics ")
	require.NoError(t, err)

	level, ok := f.DefaultLevel()
	assert.True(t, ok)
	assert.Equal(t, LevelInfo, level)
	assert.Equal(t, "info,app::db::pool=off,app::db=trace,metrics=trace", f.String())
}

func TestParseFilterErrors(t *testing.T) {
	testCases := []struct {
		spec    string
		message string
	}{
		{"=debug", "has no target"},
		{"app=loud", "invalid log level 'loud'"},
		{"info,app::db=", "invalid log level ''"},
	}

	for _, tc := range testCases {
		t.Run(tc.spec, func(t *testing.T) {
			f, err := ParseFilter(tc.spec)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Contains(t, err.Error(), tc.message)
			assert.Equal(t, tc.spec, errors.Details(err)["filter"])
		})
	}
}

func TestFilterLevelFor(t *testing.T) {
	f, err := ParseFilter("app::db=debug,app::db::pool=error,app=warn")
	require.NoError(t, err)

	testCases := []struct {
		target string
		level  slog.Level
		found  bool
	}{
		{"app", LevelWarn, true},
		{"app::http", LevelWarn, true},
		{"app::db", LevelDebug, true},
		{"app::db::replica", LevelDebug, true},
		{"app::db::pool", LevelError, true},
		{"app::db::pool::conn", LevelError, true},
		{"application", 0, false},
		{"app::dbx", LevelWarn, true},
		{"other", 0, false},
	}
	for _, tc := range testCases {
		level, ok := f.LevelFor(tc.target)
		assert.Equal(t, tc.found, ok, tc.target)
		assert.Equal(t, tc.level, level, tc.target)
	}

	lowest, ok := f.MinLevel()
	assert.True(t, ok)
	assert.Equal(t, LevelDebug, lowest)

	_, ok = f.DefaultLevel()
	assert.False(t, ok)
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	_, ok := f.LevelFor("app")
	assert.False(t, ok)
	_, ok = f.MinLevel()
	assert.False(t, ok)
	_, ok = f.DefaultLevel()
	assert.False(t, ok)
	assert.Equal(t, "", f.String())
}

func TestFilterHandlerEnabled(t *testing.T) {
	f, err := ParseFilter("app::db=trace,app::quiet=off")
	require.NoError(t, err)

	base := slog.New(newFilterMiddleware(LevelInfo, f)(NewHandler(discard{}, &HandlerOptions{Level: LevelTrace})))
	ctx := context.Background()

	// Without a target any record a directive could accept is enabled.
	assert.True(t, base.Enabled(ctx, LevelTrace))
	assert.True(t, base.With(TargetKey, "app::db").Enabled(ctx, LevelTrace))
	assert.False(t, base.With(TargetKey, "app::http").Enabled(ctx, LevelDebug))
	assert.True(t, base.With(TargetKey, "app::http").Enabled(ctx, LevelInfo))
	assert.False(t, base.With(TargetKey, "app::quiet").Enabled(ctx, LevelError))
	// A target inside a group is an ordinary attribute.
	assert.True(t, base.WithGroup("g").With(TargetKey, "app::http").Enabled(ctx, LevelDebug))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
