package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tessera/internal/pipeline"
	"tessera/internal/scene"
)

type scenePlan struct {
	Scene    string `json:"scene"`
	MinZoom  int    `json:"min_zoom"`
	MaxZoom  int    `json:"max_zoom"`
	Levels   []int  `json:"tiles_per_level"`
	Tiles    int    `json:"tiles"`
	Error    string `json:"error,omitempty"`
	Vertices int    `json:"vertices"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the zoom range and tile count each scene would produce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pattern := strings.TrimSpace(filter)
			if pattern == "" {
				pattern = cfg.Scenes.Pattern
			}
			fsys := os.DirFS(cfg.Paths.InputDir)
			loader := &scene.Loader{FS: fsys, Parser: scene.OBJParser{}, Params: pipeline.Params(cfg)}

			var plans []scenePlan
			for res, err := range scene.Select(cmd.Context(), fsys, pattern) {
				if err != nil {
					return err
				}
				plans = append(plans, planScene(cmd, loader, res))
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), plans)
			}
			out := cmd.OutOrStdout()
			if len(plans) == 0 {
				fmt.Fprintf(out, "No scenes match %q in %s\n", pattern, cfg.Paths.InputDir)
				return nil
			}
			rows := make([][]string, 0, len(plans))
			var total int
			for _, p := range plans {
				if p.Error != "" {
					rows = append(rows, []string{p.Scene, "-", "-", "-", p.Error})
					continue
				}
				levels := make([]string, len(p.Levels))
				for i, n := range p.Levels {
					levels[i] = strconv.Itoa(n)
				}
				rows = append(rows, []string{
					p.Scene,
					fmt.Sprintf("%d-%d", p.MinZoom, p.MaxZoom),
					strings.Join(levels, " / "),
					humanize.Comma(int64(p.Tiles)),
					"",
				})
				total += p.Tiles
			}
			fmt.Fprintln(out, renderTable([]string{"Scene", "Zoom", "Tiles per level", "Tiles", "Error"}, rows, 3))
			fmt.Fprintf(out, "%d scenes, %s tiles planned\n", len(plans), humanize.Comma(int64(total)))
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Scene filename pattern overriding scenes.pattern")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}

func planScene(cmd *cobra.Command, loader *scene.Loader, res scene.Resource) scenePlan {
	plan := scenePlan{Scene: res.Name}
	loaded, err := loader.Load(cmd.Context(), res)
	if err != nil {
		plan.Error = err.Error()
		return plan
	}
	g := loaded.Geometry
	plan.MinZoom = g.MinZoom()
	plan.MaxZoom = g.MaxZoom()
	plan.Vertices = len(loaded.Model.Vertices)
	for z := g.MinZoom(); z <= g.MaxZoom(); z++ {
		plan.Levels = append(plan.Levels, g.TileRange(z).Count())
	}
	plan.Tiles = g.Count()
	return plan
}
