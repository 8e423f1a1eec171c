package render

import (
	"strconv"

	"github.com/fatih/color"
)

// Level is the severity of a rendered record.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the canonical upper case level name.
func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// Tag returns the level name padded to five characters.
func (l Level) Tag() string {
	name := l.String()
	for len(name) < 5 {
		name += " "
	}
	return name
}

// Style describes how a span of text is painted: a base foreground color,
// whether the bright variant is used and whether the text is bold.
type Style struct {
	Color   color.Attribute
	Intense bool
	Bold    bool
}

// Fixed styles independent of the record level.
var (
	Deemphasized = Style{Color: color.FgBlack, Intense: true}
	Normal       = Style{Color: color.FgWhite, Intense: true}
	Abbreviation = Style{Color: color.FgCyan, Intense: true}
	PathTerminal = Style{Color: color.FgGreen, Intense: true}
	Invisible    = Style{Color: color.FgBlack}
)

// Level styles.
var (
	TraceStyle = Style{Color: color.FgMagenta}
	DebugStyle = Style{Color: color.FgBlue}
	InfoStyle  = Style{Color: color.FgWhite}
	WarnStyle  = Style{Color: color.FgYellow, Intense: true, Bold: true}
	ErrorStyle = Style{Color: color.FgRed, Intense: true, Bold: true}
)

// StyleFor returns the style of the level tag.
func StyleFor(level Level) Style {
	switch level {
	case LevelTrace:
		return TraceStyle
	case LevelDebug:
		return DebugStyle
	case LevelWarn:
		return WarnStyle
	case LevelError:
		return ErrorStyle
	default:
		return InfoStyle
	}
}

// MessageStyleFor returns the style of the message body. It differs from
// StyleFor: info messages are painted Normal, trace and debug messages use
// the plain info style.
func MessageStyleFor(level Level) Style {
	switch level {
	case LevelInfo:
		return Normal
	case LevelWarn:
		return WarnStyle
	case LevelError:
		return ErrorStyle
	default:
		return InfoStyle
	}
}

// Attributes returns the fatih/color attributes that paint s.
func (s Style) Attributes() []color.Attribute {
	fg := s.Color
	if s.Intense {
		fg = fg - color.FgBlack + color.FgHiBlack
	}
	if s.Bold {
		return []color.Attribute{color.Bold, fg}
	}
	return []color.Attribute{fg}
}

// Painter returns a fatih/color painter for s with colors forced on or off.
func (s Style) Painter(enabled bool) *color.Color {
	c := color.New(s.Attributes()...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
