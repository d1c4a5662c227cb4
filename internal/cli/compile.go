package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glasswing-gfx/framegraph/pkg/export"
	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
)

// compileCommand creates the compile command.
func (c *CLI) compileCommand() *cobra.Command {
	var (
		configPath string
		dotOut     string
		svgOut     string
		pngOut     string
		detailed   bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "compile <manifest.toml>",
		Short: "Compile a frame manifest into an execution plan",
		Long: `Compile loads a frame manifest, runs the full compilation pipeline
(ordering, transient memory placement, barrier planning) against a
recording device, and reports the resulting plan. No GPU is involved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog := newProgress(c.Logger)

			cf, err := c.compileManifest(configPath, args[0])
			if err != nil {
				printError("compilation failed: %v", err)
				return err
			}
			plan := cf.plan
			prog.done(fmt.Sprintf("Compiled %d passes", plan.Stats.PassCount))

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(planReport(plan))
			}

			printSuccess("plan %s", plan.Fingerprint[:12])
			printStats(plan.Stats.PassCount, plan.Stats.EdgeCount, plan.Stats.BarrierCount)
			printKeyValue("memory", fmt.Sprintf("%d blocks, %d bytes", plan.Stats.BlockCount, plan.Stats.BytesUsed))
			printKeyValue("boundaries", fmt.Sprintf("%d", len(plan.Placement.Boundaries)))

			if dotOut != "" {
				dot := export.ToDOT(plan, cf.engine.Registry(), export.Options{Detailed: detailed})
				if err := os.WriteFile(dotOut, []byte(dot), 0o644); err != nil {
					return err
				}
				printFile(dotOut)
			}
			if svgOut != "" {
				dot := export.ToDOT(plan, cf.engine.Registry(), export.Options{Detailed: detailed})
				svg, err := export.RenderSVG(dot)
				if err != nil {
					return err
				}
				if err := os.WriteFile(svgOut, svg, 0o644); err != nil {
					return err
				}
				printFile(svgOut)
			}
			if pngOut != "" {
				dot := export.ToDOT(plan, cf.engine.Registry(), export.Options{Detailed: detailed})
				png, err := export.RenderPNG(dot)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pngOut, png, 0o644); err != nil {
					return err
				}
				printFile(pngOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "engine config file (TOML)")
	cmd.Flags().StringVar(&dotOut, "dot", "", "write the plan graph as DOT to this path")
	cmd.Flags().StringVar(&svgOut, "svg", "", "render the plan graph as SVG to this path")
	cmd.Flags().StringVar(&pngOut, "png", "", "render the plan graph as PNG to this path")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include per-access detail in graph labels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the plan report as JSON")

	return cmd
}

// report is the JSON shape of a compiled plan for tooling consumption.
type report struct {
	Fingerprint string `json:"fingerprint"`
	Passes      int    `json:"passes"`
	Edges       int    `json:"edges"`
	Barriers    int    `json:"barriers"`
	Blocks      int    `json:"blocks"`
	BytesUsed   uint64 `json:"bytes_used"`
	Boundaries  int    `json:"boundaries"`
}

func planReport(plan *framegraph.Plan) report {
	return report{
		Fingerprint: plan.Fingerprint,
		Passes:      plan.Stats.PassCount,
		Edges:       plan.Stats.EdgeCount,
		Barriers:    plan.Stats.BarrierCount,
		Blocks:      plan.Stats.BlockCount,
		BytesUsed:   plan.Stats.BytesUsed,
		Boundaries:  len(plan.Placement.Boundaries),
	}
}
