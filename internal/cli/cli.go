// Package cli implements the framegraph command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/glasswing-gfx/framegraph/pkg/buildinfo"
	"github.com/glasswing-gfx/framegraph/pkg/config"
	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/manifest"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "framegraph"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Framegraph compiles declared render frames into execution plans",
		Long:         `Framegraph is a frame-graph engine toolchain: it compiles frame manifests into ordered, memory-aliased, barrier-synchronized execution plans and inspects the result without touching a GPU.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.compileCommand())
	root.AddCommand(c.traceCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Engine Factory
// =============================================================================

// compiledFrame bundles everything a command needs after compiling a
// manifest against the recording device.
type compiledFrame struct {
	engine *framegraph.Engine
	device *gpu.NullDevice
	plan   *framegraph.Plan
}

// compileManifest loads the config and manifest and compiles the frame on
// a recording device.
func (c *CLI) compileManifest(configPath, manifestPath string) (*compiledFrame, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	device := gpu.NewNullDevice()
	engine := framegraph.New(device, framegraph.Options{
		Budget:       cfg.Memory.Budget,
		MinAlignment: cfg.Memory.MinAlignment,
		TrimUnused:   cfg.Memory.TrimUnused,
		Logger:       c.Logger,
	})

	if err := m.Apply(engine); err != nil {
		return nil, err
	}
	plan, err := engine.Compile()
	if err != nil {
		return nil, err
	}
	return &compiledFrame{engine: engine, device: device, plan: plan}, nil
}
