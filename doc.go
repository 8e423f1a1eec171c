// Package difflog is a slog front end for terminals that keeps dense debug
// output readable.
//
// Every record becomes one line:
//
//	2026-10-15T09:41:07.123_456_789+02:00[INFO  DL] Logger initialized
//	2026-10-15T09:41:07.125_004_112+02:00[DEBUG app:db:pool] connected addr=10.0.0.4
//
// The part of the timestamp that did not change since the previous line is
// dimmed so the eye lands on what moved. A clock that went backwards, or a
// zone offset that changed between two lines, is painted in the error color.
// Source paths use "::" separated segments, are written with ":" and end in
// a highlighted leaf; this library's own "difflog::log" namespace shrinks to
// "DL". See package render for the line format.
//
// # Usage
//
//	func main() {
//	    difflog.Init() // installs the logger as slog's default
//
//	    db := difflog.NewLogger(difflog.WithTarget("app::db"))
//	    db.Debug("connected", "addr", addr)
//
//	    err := errors.WithDetails(errors.New("query failed"), "table", "users")
//	    db.Error("lookup", "error", err)
//	}
//
// Records logged through slog directly use the package of the calling
// function as source path, e.g. github.com/acme/shop/internal/cart becomes
// "shop::internal::cart". The TargetKey attribute overrides it.
//
// # Filtering
//
// DIFFLOG_LOG holds comma separated directives read at start-up:
//
//	DIFFLOG_LOG=info,app::db=trace,app::db::pool=off
//
// A bare level sets the default, target=level sets the level of a path and
// everything below it, a bare target enables all its records. The most
// specific target wins. SetFilter changes the directives at run time.
//
// # Configuration
//
//	difflog.SetFormatterConfig(difflog.FormatterConfig{
//	    EnableColors:     true,
//	    EnableFormatting: true,
//	    Layout:           difflog.LayoutDiff,
//	    TimeFormat:       time.RFC3339,
//	})
//
// Colors are dropped automatically when stderr is not a terminal or NO_COLOR
// is set. LayoutClassic switches to plain tint output.
//
// # Errors
//
// Errors from gitlab.com/tozd/go/errors are expanded into message, details,
// cause and a stack trace painted with the source path colors. Handler.Handle
// returns the sink's write error unchanged apart from a stack trace.
//
// # Callbacks
//
// RegisterCallback runs a function for every record of a level and
// OnAnomaly for every clock regression or zone change seen while rendering.
// Both run asynchronously and never block logging.
package difflog
