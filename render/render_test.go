package render

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gitlab.com/tozd/go/errors"
)

type recordedSpan struct {
	style Style
	text  string
	raw   bool
}

type recorder struct {
	spans []recordedSpan
}

func (r *recorder) span(s Style, text string) error {
	r.spans = append(r.spans, recordedSpan{style: s, text: text})
	return nil
}

func (r *recorder) raw(text string) error {
	r.spans = append(r.spans, recordedSpan{text: text, raw: true})
	return nil
}

func (r *recorder) digits() []recordedSpan {
	var out []recordedSpan
	for _, s := range r.spans {
		if len(s.text) == 1 && s.text[0] >= '0' && s.text[0] <= '9' {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) text() string {
	var b strings.Builder
	for _, s := range r.spans {
		b.WriteString(s.text)
	}
	return b.String()
}

// failingWriter accepts limit bytes, then fails every write.
type failingWriter struct {
	limit int
	buf   bytes.Buffer
}

var errSinkClosed = errors.Base("sink closed")

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.limit {
		return 0, errSinkClosed
	}
	return w.buf.Write(p)
}

type RenderSuite struct {
	suite.Suite
	zone     *time.Location
	base     time.Time
	renderer *Renderer
}

func TestRenderSuite(t *testing.T) {
	suite.Run(t, new(RenderSuite))
}

func (suite *RenderSuite) SetupTest() {
	suite.zone = time.FixedZone("CEST", 2*60*60)
	suite.base = time.Date(2024, time.March, 5, 10, 20, 30, 123456789, suite.zone)
	suite.renderer = New(WithColor(false))
}

// stamp renders only the timestamp of ts and commits it like a full line.
func (suite *RenderSuite) stamp(ts time.Time) *recorder {
	rec := &recorder{}
	st, err := suite.renderer.writeTimestamp(rec, ts)
	suite.Require().NoError(err)
	suite.renderer.state.commit(ts, st.offset, 0)
	return rec
}

func (suite *RenderSuite) TestDigitString() {
	suite.Equal("20240305102030123456789", string(appendDigits(nil, suite.base)))
}

func (suite *RenderSuite) TestFirstRecordDivergesForward() {
	rec := suite.stamp(suite.base)

	digits := rec.digits()
	suite.Len(digits, 23)
	for _, d := range digits {
		suite.Equal(Normal, d.style)
	}
}

func (suite *RenderSuite) TestFirstRecordBeforeEpochDivergesForward() {
	var anomalies []Anomaly
	r := New(WithColor(false), WithAnomalyHook(func(a Anomaly) { anomalies = append(anomalies, a) }))
	landing := time.Date(1969, time.July, 20, 20, 17, 40, 0, time.UTC)

	rec := &recorder{}
	suite.Require().NoError(r.render(rec, Record{Time: landing, Level: LevelInfo, Target: "apollo", Message: "landed"}))

	digits := rec.digits()
	suite.Require().Len(digits, 23)
	for _, d := range digits {
		suite.Equal(Normal, d.style, d.text)
	}
	suite.Empty(anomalies)

	// Once something was rendered, going back is a regression again.
	suite.Require().NoError(r.render(&recorder{}, Record{Time: landing.Add(-time.Second), Level: LevelInfo, Target: "apollo"}))
	suite.Require().Len(anomalies, 1)
	suite.Equal([]AnomalyKind{ClockRegression}, anomalies[0].Kinds)

	r.State().Reset()
	suite.Require().NoError(r.render(&recorder{}, Record{Time: landing.Add(-time.Hour), Level: LevelInfo, Target: "apollo"}))
	suite.Len(anomalies, 1)
}

func (suite *RenderSuite) TestIdenticalTimestampIsDeemphasized() {
	suite.stamp(suite.base)
	rec := suite.stamp(suite.base)

	for i, d := range rec.digits() {
		suite.Equal(Deemphasized, d.style, "digit %d", i)
	}
}

func (suite *RenderSuite) TestLaterTimestampHighlightsFromDivergence() {
	first := suite.stamp(suite.base)
	rec := suite.stamp(suite.base.Add(time.Second))

	prev := first.digits()
	digits := rec.digits()
	suite.Require().Len(digits, 23)
	// 102030 -> 102031: the last second digit is the first to change.
	for i, d := range digits {
		if i < 13 {
			suite.Equal(Deemphasized, d.style, "digit %d", i)
			suite.Equal(prev[i].text, d.text, "digit %d", i)
		} else {
			suite.Equal(Normal, d.style, "digit %d", i)
		}
	}
}

func (suite *RenderSuite) TestForwardLockDoesNotCompareFurther() {
	suite.stamp(suite.base)
	// 30.123456789 -> 31.000000000: later digits are smaller but stay Normal.
	rec := suite.stamp(time.Date(2024, time.March, 5, 10, 20, 31, 0, suite.zone))

	for i, d := range rec.digits()[13:] {
		suite.Equal(Normal, d.style, "digit %d", i+13)
	}
}

func (suite *RenderSuite) TestClockRegressionIsError() {
	suite.stamp(suite.base)
	rec := suite.stamp(suite.base.Add(-time.Second))

	digits := rec.digits()
	suite.Require().Len(digits, 23)
	// 102030 -> 102029: the tens of seconds go backwards.
	for i, d := range digits {
		if i < 12 {
			suite.Equal(Deemphasized, d.style, "digit %d", i)
		} else {
			suite.Equal(ErrorStyle, d.style, "digit %d", i)
		}
	}
}

func (suite *RenderSuite) TestSeparatorsAreFixed() {
	suite.stamp(suite.base)
	rec := suite.stamp(suite.base.Add(time.Hour))

	var seps []recordedSpan
	for _, s := range rec.spans {
		if len(s.text) == 1 && (s.text[0] < '0' || s.text[0] > '9') {
			seps = append(seps, s)
		}
	}
	suite.Require().Len(seps, 8)
	suite.Equal("--T::.__", func() string {
		var b strings.Builder
		for _, s := range seps {
			b.WriteString(s.text)
		}
		return b.String()
	}())
	for _, s := range seps {
		if s.text == "T" {
			suite.Equal(Invisible, s.style)
		} else {
			suite.Equal(Deemphasized, s.style)
		}
	}
	suite.Equal("2024-03-05T11:20:30.123_456_789+02:00", rec.text())
}

func (suite *RenderSuite) TestOffsetStyles() {
	offsetOf := func(rec *recorder) recordedSpan {
		return rec.spans[len(rec.spans)-1]
	}

	first := suite.stamp(suite.base)
	suite.Equal("+02:00", offsetOf(first).text)
	suite.Equal(Normal, offsetOf(first).style)

	same := suite.stamp(suite.base.Add(time.Millisecond))
	suite.Equal(Deemphasized, offsetOf(same).style)

	changed := suite.stamp(suite.base.Add(2 * time.Millisecond).In(time.FixedZone("EST", -5*60*60)))
	suite.Equal("-05:00", offsetOf(changed).text)
	suite.Equal(ErrorStyle, offsetOf(changed).style)
}

func (suite *RenderSuite) TestUTCOffsetIsNotTheSentinel() {
	utc := suite.base.UTC()
	first := suite.stamp(utc)
	suite.Equal(Normal, first.spans[len(first.spans)-1].style)
	second := suite.stamp(utc)
	suite.Equal(Deemphasized, second.spans[len(second.spans)-1].style)
}

func (suite *RenderSuite) TestRecordLayoutWithoutColor() {
	var buf bytes.Buffer
	err := suite.renderer.Render(&buf, Record{
		Time:    suite.base.UTC(),
		Level:   LevelInfo,
		Target:  "app::sub::leaf",
		Message: "hello",
	})
	suite.Require().NoError(err)
	suite.Equal("2024-03-05T08:20:30.123_456_789+00:00[INFO  app:sub:leaf] hello\n", buf.String())
}

func (suite *RenderSuite) TestRecordSpanStyles() {
	rec := &recorder{}
	err := suite.renderer.render(rec, Record{
		Time:    suite.base,
		Level:   LevelWarn,
		Target:  "difflog::log::init",
		Message: "careful",
	})
	suite.Require().NoError(err)

	suite.Equal(recordedSpan{text: "\n", raw: true}, rec.spans[len(rec.spans)-1])
	tail := rec.spans[len(rec.spans)-10 : len(rec.spans)-1]
	suite.Equal([]recordedSpan{
		{style: Deemphasized, text: "["},
		{style: WarnStyle, text: "WARN "},
		{style: Deemphasized, text: " "},
		{style: Abbreviation, text: "D"},
		{style: Abbreviation, text: "L"},
		{style: Deemphasized, text: ":"},
		{style: PathTerminal, text: "init"},
		{style: Deemphasized, text: "] "},
		{style: WarnStyle, text: "careful"},
	}, tail)
}

func (suite *RenderSuite) TestColoredOutputCarriesEscapes() {
	var buf bytes.Buffer
	r := New(WithColor(true))
	suite.Require().NoError(r.Render(&buf, Record{Time: suite.base, Level: LevelError, Target: "app", Message: "boom"}))
	suite.Contains(buf.String(), "\x1b[")
	suite.True(strings.HasSuffix(buf.String(), "\n"))
	suite.True(r.ColorEnabled())
}

func (suite *RenderSuite) TestRenderIsReproducibleFromFreshState() {
	records := []Record{
		{Time: suite.base, Level: LevelInfo, Target: "difflog::log", Message: "Logger initialized"},
		{Time: suite.base.Add(time.Microsecond), Level: LevelDebug, Target: "app::db::pool", Message: "connected"},
		{Time: suite.base.Add(-time.Hour), Level: LevelWarn, Target: "app", Message: "clock"},
		{Time: suite.base.In(time.UTC), Level: LevelError, Target: "app::db", Message: "zone"},
	}
	run := func() []byte {
		r := New(WithColor(true))
		var out []byte
		for _, rec := range records {
			out = r.AppendRecord(out, rec)
		}
		return out
	}

	suite.Equal(run(), run())
}

func (suite *RenderSuite) TestWriteFailurePropagates() {
	w := &failingWriter{limit: 10}
	err := suite.renderer.Render(w, Record{Time: suite.base, Level: LevelInfo, Target: "app", Message: "lost"})
	suite.Require().Error(err)
	suite.ErrorIs(err, errSinkClosed)

	// Nothing was committed for the broken line.
	_, ok := suite.renderer.State().LastOffset()
	suite.False(ok)
	suite.Equal(0, suite.renderer.State().MaxTargetWidth())
	suite.LessOrEqual(w.buf.Len(), 10)
}

func (suite *RenderSuite) TestSharedState() {
	state := NewState()
	a := New(WithState(state), WithColor(false))
	b := New(WithState(state), WithColor(false))
	suite.Same(state, a.State())

	_ = a.AppendRecord(nil, Record{Time: suite.base, Level: LevelInfo, Target: "app", Message: "a"})
	rec := &recorder{}
	_, err := b.writeTimestamp(rec, suite.base)
	suite.Require().NoError(err)
	for _, d := range rec.digits() {
		suite.Equal(Deemphasized, d.style)
	}
}

func (suite *RenderSuite) TestAnomalyHook() {
	var got []Anomaly
	r := New(WithColor(false), WithAnomalyHook(func(a Anomaly) {
		got = append(got, a)
	}))
	render := func(ts time.Time) {
		suite.Require().NoError(r.Render(&bytes.Buffer{}, Record{Time: ts, Target: "app", Message: "m"}))
	}

	render(suite.base)
	render(suite.base.Add(time.Second))
	suite.Empty(got)

	render(suite.base)
	suite.Require().Len(got, 1)
	suite.Equal([]AnomalyKind{ClockRegression}, got[0].Kinds)
	suite.True(got[0].Previous.Equal(suite.base.Add(time.Second)))
	suite.True(got[0].Current.Equal(suite.base))

	render(suite.base.Add(2 * time.Second).In(time.UTC))
	suite.Require().Len(got, 2)
	suite.Equal([]AnomalyKind{ZoneChange}, got[1].Kinds)
	suite.Equal(2*60*60, got[1].PreviousOffset)
	suite.Equal(0, got[1].CurrentOffset)
	suite.Equal("zone change", ZoneChange.String())
}

func (suite *RenderSuite) TestConcurrentRenders() {
	r := New(WithColor(true))
	targets := []string{"a", "app::b", "difflog::log::c", "some::much::longer::target::path"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				var buf bytes.Buffer
				err := r.Render(&buf, Record{
					Time:    suite.base.Add(time.Duration(i*j) * time.Millisecond),
					Level:   Level(j % 5),
					Target:  targets[(i+j)%len(targets)],
					Message: "concurrent",
				})
				suite.NoError(err)
				suite.Contains(buf.String(), "concurrent")
			}
		}(i)
	}
	wg.Wait()

	suite.Equal(len("some:much:longer:target:path"), r.State().MaxTargetWidth())
}
