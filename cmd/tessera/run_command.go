package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tessera/internal/pipeline"
	"tessera/internal/progress"
)

type skippedJSON struct {
	Scene string `json:"scene"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type runSummary struct {
	RunID        string           `json:"run_id"`
	Duration     string           `json:"duration"`
	PlannedTiles int64            `json:"planned_tiles"`
	Counters     map[string]int64 `json:"counters"`
	BytesWritten int64            `json:"bytes_written"`
	PeakLeases   int              `json:"peak_renderer_leases"`
	Skipped      []skippedJSON    `json:"skipped_scenes,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var jsonOutput bool
	var noProgress bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render every matching scene into tiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(logLevel)
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			scheduler, err := pipeline.Build(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), 30*time.Second)
				defer cancel()
				_ = scheduler.Close(closeCtx)
			}()

			var stopBar func()
			if !noProgress && !jsonOutput && isTerminal(cmd.ErrOrStderr()) {
				stopBar = startProgressBar(cmd.ErrOrStderr(), scheduler.Tracker())
			}
			result, runErr := scheduler.Run(runCtx, filter)
			if stopBar != nil {
				stopBar()
			}

			if result.RunID == "" {
				return runErr
			}
			summary := summarize(result)
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), result)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Scene filename pattern overriding scenes.pattern")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the interactive progress bar")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run (debug, info, warn, error)")
	return cmd
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// startProgressBar redraws a bar of settled tiles against planned tiles until
// the returned stop function is called.
func startProgressBar(w io.Writer, tracker *progress.Tracker) func() {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("discovering"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("tiles"),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		var planned int64 = -1
		for {
			snap := tracker.Snapshot()
			if snap.Get(progress.ScenesFound).TotalKnown && snap.PlannedTiles != planned {
				planned = snap.PlannedTiles
				bar.ChangeMax64(planned)
			}
			bar.Describe(progress.Phase(snap))
			_ = bar.Set64(snap.Settled())
			select {
			case <-done:
				_ = bar.Finish()
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func summarize(result pipeline.Result) runSummary {
	summary := runSummary{
		RunID:        result.RunID,
		Duration:     result.Duration.Round(time.Millisecond).String(),
		PlannedTiles: result.Snapshot.PlannedTiles,
		Counters:     make(map[string]int64, len(result.Snapshot.Steps)),
		BytesWritten: result.BytesWritten,
		PeakLeases:   result.PeakLeases,
	}
	for _, step := range result.Snapshot.Steps {
		summary.Counters[step.Name] = step.Count
	}
	for _, s := range result.SkippedScenes {
		summary.Skipped = append(summary.Skipped, skippedJSON{Scene: s.Name, Stage: s.Stage, Error: s.Err.Error()})
	}
	return summary
}

func printSummary(out io.Writer, result pipeline.Result) {
	rows := make([][]string, 0, len(result.Snapshot.Steps))
	for _, step := range result.Snapshot.Steps {
		total := "-"
		if step.TotalKnown {
			total = strconv.FormatInt(step.Total, 10)
		}
		rows = append(rows, []string{step.Name, strconv.FormatInt(step.Count, 10), total})
	}
	fmt.Fprintln(out, renderTable([]string{"Step", "Count", "Total"}, rows, 1, 2))

	bytes := uint64(0)
	if result.BytesWritten > 0 {
		bytes = uint64(result.BytesWritten)
	}
	fmt.Fprintf(out, "Run %s finished in %s: %s tiles planned, %s written, peak %d renderer leases\n",
		result.RunID,
		result.Duration.Round(time.Millisecond),
		humanize.Comma(result.Snapshot.PlannedTiles),
		humanize.Bytes(bytes),
		result.PeakLeases,
	)

	if len(result.SkippedScenes) == 0 {
		return
	}
	skipped := make([][]string, 0, len(result.SkippedScenes))
	for _, s := range result.SkippedScenes {
		skipped = append(skipped, []string{s.Name, s.Stage, s.Err.Error()})
	}
	fmt.Fprintln(out, "Skipped scenes:")
	fmt.Fprintln(out, renderTable([]string{"Scene", "Stage", "Error"}, skipped))
}
