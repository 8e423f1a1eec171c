package render

import (
	"bytes"
	"time"
)

// digitLayout yields YYYYMMDDHHMMSS followed by nine nanosecond digits once
// the dot is dropped.
const digitLayout = "20060102150405.000000000"

const offsetLayout = "-07:00"

// divergence is the outcome of comparing the current timestamp against the
// previous one, digit by digit.
type divergence int

const (
	stillMatching divergence = iota
	divergedForward
	divergedBackward
)

// appendDigits appends the separator-free digit string of t to dst.
func appendDigits(dst []byte, t time.Time) []byte {
	start := len(dst)
	dst = t.AppendFormat(dst, digitLayout)
	if i := bytes.IndexByte(dst[start:], '.'); i >= 0 {
		dst = append(dst[:start+i], dst[start+i+1:]...)
	}
	return dst
}

// separatorAt returns the glyph written before the digit at position i so
// the string reads YYYY-mm-DDTHH:MM:SS.sss_sss_sss.
func separatorAt(i int) (glyph string, style Style, ok bool) {
	switch i {
	case 4, 6:
		return "-", Deemphasized, true
	case 8:
		return "T", Invisible, true
	case 10, 12:
		return ":", Deemphasized, true
	case 14:
		return ".", Deemphasized, true
	case 17, 20:
		return "_", Deemphasized, true
	}
	return "", Style{}, false
}

// AnomalyKind classifies a timestamp that did not move forward as expected.
type AnomalyKind int

const (
	// ClockRegression: the timestamp is earlier than the previous one.
	ClockRegression AnomalyKind = iota + 1
	// ZoneChange: the zone offset differs from the previous record's.
	ZoneChange
)

func (k AnomalyKind) String() string {
	switch k {
	case ClockRegression:
		return "clock regression"
	case ZoneChange:
		return "zone change"
	}
	return "none"
}

// Anomaly is reported when a rendered timestamp was painted as an error.
type Anomaly struct {
	Kinds          []AnomalyKind
	Previous       time.Time
	Current        time.Time
	PreviousOffset int
	CurrentOffset  int
}

// stampResult is what writeTimestamp learned about the current record.
type stampResult struct {
	offset  int
	anomaly *Anomaly
}

// writeTimestamp renders ts against the previously rendered timestamp. The
// state is left untouched.
func (r *Renderer) writeTimestamp(w spanWriter, ts time.Time) (stampResult, error) {
	prev := time.Unix(0, r.state.lastTimestamp.Load()).In(ts.Location())

	var lastBuf, curBuf [32]byte
	last := appendDigits(lastBuf[:0], prev)
	cur := appendDigits(curBuf[:0], ts)

	lastOffset := r.state.lastOffset.Load()
	status := stillMatching
	locked := Deemphasized
	if lastOffset == uninitOffset {
		// Nothing rendered yet: the whole stamp is new, whatever its year.
		status, locked = divergedForward, Normal
	}
	n := min(len(last), len(cur))
	for i := 0; i < n; i++ {
		if glyph, style, ok := separatorAt(i); ok {
			if err := w.span(style, glyph); err != nil {
				return stampResult{}, err
			}
		}

		c, l := cur[i], last[i]
		if status == stillMatching {
			switch {
			case c > l:
				status, locked = divergedForward, Normal
			case c < l:
				// The wall clock went backwards.
				status, locked = divergedBackward, ErrorStyle
			}
		}
		if err := w.span(locked, string(c)); err != nil {
			return stampResult{}, err
		}
	}

	_, offset := ts.Zone()
	var tz Style
	switch {
	case int64(offset) == lastOffset:
		tz = Deemphasized
	case lastOffset == uninitOffset:
		tz = Normal
	default:
		// Any live zone change is an anomaly.
		tz = ErrorStyle
	}
	if err := w.span(tz, ts.Format(offsetLayout)); err != nil {
		return stampResult{}, err
	}

	st := stampResult{offset: offset}
	var kinds []AnomalyKind
	if status == divergedBackward {
		kinds = append(kinds, ClockRegression)
	}
	if tz == ErrorStyle {
		kinds = append(kinds, ZoneChange)
	}
	if len(kinds) > 0 {
		st.anomaly = &Anomaly{
			Kinds:         kinds,
			Previous:      prev,
			Current:       ts,
			CurrentOffset: offset,
		}
		if lastOffset != uninitOffset {
			st.anomaly.PreviousOffset = int(lastOffset)
		}
	}
	return st, nil
}
