package main

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dianlight/difflog"
	"github.com/dianlight/difflog/render"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var catCmd = &cobra.Command{
	Use:   "cat [file]",
	Short: "Render \"[timestamp] LEVEL target message\" lines",
	Long: `Reads lines of the form

  [RFC3339 timestamp] LEVEL target message...

from the file or stdin and renders them. Lines without a timestamp are
stamped with the time they are read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.WithStack(err)
			}
			defer f.Close()
			in = f
		}

		colors := difflog.IsColorsEnabled()
		var out io.Writer = cmd.OutOrStdout()
		if colors && out == os.Stdout {
			out = colorable.NewColorableStdout()
		}
		r := render.New(
			render.WithColor(colors),
			render.WithPadTarget(difflog.GetFormatterConfig().PadTarget),
		)
		return catLines(r, in, out)
	},
}

func catLines(r *render.Renderer, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := r.Render(out, parseLine(line, time.Now())); err != nil {
			return err
		}
	}
	return errors.WithStack(scanner.Err())
}

// parseLine splits a line into a record. Fields that do not parse end up in
// the message.
func parseLine(line string, now time.Time) render.Record {
	rec := render.Record{Time: now, Level: render.LevelInfo, Target: "stdin"}

	fields := strings.SplitN(line, " ", 2)
	if ts, err := time.Parse(time.RFC3339Nano, fields[0]); err == nil {
		rec.Time = ts
		if len(fields) == 1 {
			return rec
		}
		line = fields[1]
	}

	fields = strings.SplitN(line, " ", 3)
	level, ok := parseLevel(fields[0])
	if !ok || len(fields) < 2 {
		rec.Message = line
		return rec
	}
	rec.Level = level
	rec.Target = fields[1]
	if len(fields) == 3 {
		rec.Message = fields[2]
	}
	return rec
}

func parseLevel(s string) (render.Level, bool) {
	switch strings.ToUpper(strings.Trim(s, "[]")) {
	case "TRACE":
		return render.LevelTrace, true
	case "DEBUG":
		return render.LevelDebug, true
	case "INFO":
		return render.LevelInfo, true
	case "WARN", "WARNING":
		return render.LevelWarn, true
	case "ERROR":
		return render.LevelError, true
	}
	return 0, false
}
