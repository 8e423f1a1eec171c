package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dianlight/difflog"
	"github.com/dianlight/difflog/render"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Log sample records, optionally from many goroutines",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("goroutines")
		records, _ := cmd.Flags().GetInt("records")
		dump, _ := cmd.Flags().GetBool("dump-state")

		runDemo(workers, records)

		if dump {
			dumpState(cmd.ErrOrStderr(), difflog.Default().State())
		}
		return nil
	},
}

// dumpState pretty-prints a snapshot of state to w.
func dumpState(w io.Writer, state *render.State) {
	printer := pp.New()
	printer.SetColoringEnabled(difflog.IsColorsEnabled())
	printer.SetOutput(w)
	printer.Println(state.Snapshot())
}

func init() {
	demoCmd.Flags().IntP("goroutines", "g", 1, "Goroutines logging at the same time")
	demoCmd.Flags().IntP("records", "n", 5, "Records logged by each goroutine")
	demoCmd.Flags().Bool("dump-state", false, "Print the render state when done")
}

func runDemo(workers, records int) {
	difflog.Init()

	id := difflog.OnAnomaly(func(a render.Anomaly) {
		fmt.Printf("anomaly: %v at %s\n", a.Kinds, a.Current.Format(time.RFC3339Nano))
	})
	defer difflog.UnregisterAnomalyCallback(id)

	db := difflog.NewLogger(difflog.WithTarget("app::db::pool"))
	api := difflog.NewLogger(difflog.WithTarget("app::http"))

	difflog.Trace("demo starting", "goroutines", workers, "records", records)
	db.Debug("connected", "addr", "10.0.0.4:5432")
	api.Info("listening", "port", 8080)
	api.Warn("slow request", "path", "/cart", "elapsed", 1500*time.Millisecond)

	err := errors.WithDetails(errors.New("query failed"), "table", "users")
	db.Error("lookup", "error", err)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := difflog.NewLogger(difflog.WithTarget(fmt.Sprintf("app::worker::w%d", w)))
			for i := 0; i < records; i++ {
				worker.Info("tick", "i", i)
				time.Sleep(time.Duration(i) * time.Millisecond)
			}
		}()
	}
	wg.Wait()
}
