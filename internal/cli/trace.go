package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"

	tea "github.com/charmbracelet/bubbletea"
)

// traceCommand creates the trace command.
func (c *CLI) traceCommand() *cobra.Command {
	var (
		configPath string
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "trace <manifest.toml>",
		Short: "Step through a compiled frame's barrier schedule",
		Long: `Trace compiles a frame manifest, executes it against the recording
device, and opens an interactive stepper over the pass schedule: for each
pass it shows the coalesced barrier issued before it and the recorded
device commands. Use --plain for a non-interactive dump.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := c.compileManifest(configPath, args[0])
			if err != nil {
				printError("compilation failed: %v", err)
				return err
			}

			// Snapshot names before execution retires the transients.
			steps := buildTraceSteps(cf.plan, cf.engine.Registry())

			if err := cf.engine.Execute(cmd.Context(), cf.plan); err != nil {
				printError("execution failed: %v", err)
				return err
			}

			if plain {
				printTracePlain(cf, steps)
				return nil
			}

			model := newTraceModel(cf.plan.Fingerprint, steps, cf.device.Journal())
			_, err = tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "engine config file (TOML)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the trace without the interactive stepper")

	return cmd
}

// traceStep is one pass's slot in the stepper.
type traceStep struct {
	Name    string
	Queue   string
	Barrier []string // rendered barrier lines, empty when none
	Access  []string // rendered access lines
}

func buildTraceSteps(plan *framegraph.Plan, reg *registry.Registry) []traceStep {
	steps := make([]traceStep, 0, plan.Graph.Len())
	for i, pass := range plan.Graph.Passes {
		step := traceStep{Name: pass.Name, Queue: pass.Queue.String()}

		bp := plan.Sync.Barriers[i]
		if !bp.Empty() {
			step.Barrier = append(step.Barrier,
				fmt.Sprintf("stages %s %s %s", bp.SrcStages, iconArrow, bp.DstStages))
			for _, bs := range bp.Buffers {
				step.Barrier = append(step.Barrier,
					fmt.Sprintf("buffer %s: %s %s %s", resourceName(reg, bs.Resource), bs.SrcAccess, iconArrow, bs.DstAccess))
			}
			for _, is := range bp.Images {
				line := fmt.Sprintf("image %s: %s %s %s", resourceName(reg, is.Resource), is.SrcAccess, iconArrow, is.DstAccess)
				if is.OldLayout != is.NewLayout {
					line += fmt.Sprintf(", layout %s %s %s", is.OldLayout, iconArrow, is.NewLayout)
				}
				step.Barrier = append(step.Barrier, line)
			}
		}

		for _, a := range pass.Accesses {
			line := fmt.Sprintf("%s %s @ %s", a.Mode, resourceName(reg, a.Resource), a.Stage)
			if a.Layout != 0 {
				line += fmt.Sprintf(" (%s)", a.Layout)
			}
			step.Access = append(step.Access, line)
		}
		steps = append(steps, step)
	}
	return steps
}

func resourceName(reg *registry.Registry, h registry.Handle) string {
	if res, err := reg.Lookup(h); err == nil {
		return res.Name
	}
	// Transients retire at frame end; fall back to the numeric handle.
	return fmt.Sprintf("res %d", h)
}

func printTracePlain(cf *compiledFrame, steps []traceStep) {
	printInfo("plan %s", cf.plan.Fingerprint[:12])
	for i, step := range steps {
		fmt.Printf("[%d] %s (%s)\n", i, step.Name, step.Queue)
		if len(step.Barrier) == 0 {
			printDetail("no barrier")
		}
		for _, line := range step.Barrier {
			printDetail("barrier: %s", line)
		}
		for _, line := range step.Access {
			printDetail("access: %s", line)
		}
	}
	printInfo("device journal")
	for _, line := range cf.device.Journal() {
		printDetail("%s", line)
	}
}
