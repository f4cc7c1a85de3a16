package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tessera/internal/logging"
	"tessera/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var runID string
	var contains string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return errors.New("paths.log_dir is not set; logs only go to stderr")
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.FileName)
			filter := lineFilter(runID, contains)

			tail, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, filter, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().StringVar(&runID, "run", "", "Only show records whose run_id matches")
	cmd.Flags().StringVar(&contains, "grep", "", "Only show lines containing this text")
	return cmd
}

// lineFilter matches JSON log lines by run id field and free text.
func lineFilter(runID, contains string) logs.Filter {
	var runField string
	if runID = strings.TrimSpace(runID); runID != "" {
		runField = fmt.Sprintf("%q:%q", logging.FieldRunID, runID)
	}
	if runField == "" && contains == "" {
		return nil
	}
	return func(line string) bool {
		if runField != "" && !strings.Contains(line, runField) {
			return false
		}
		return contains == "" || strings.Contains(line, contains)
	}
}
