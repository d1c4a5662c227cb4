package cli

import (
	"github.com/spf13/cobra"

	"github.com/glasswing-gfx/framegraph/pkg/config"
	"github.com/glasswing-gfx/framegraph/pkg/inspect"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve <manifest.toml>",
		Short: "Serve a compiled plan over HTTP for inspection",
		Long: `Serve compiles a frame manifest and publishes the plan on a local
HTTP server: JSON at /plan, Graphviz DOT at /plan/dot and rendered SVG at
/plan/svg. The server runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}

			cf, err := c.compileManifest(configPath, args[0])
			if err != nil {
				printError("compilation failed: %v", err)
				return err
			}

			srv := inspect.NewServer(addr, c.Logger)
			srv.Publish(cf.plan, cf.engine.Registry())

			printSuccess("plan %s", cf.plan.Fingerprint[:12])
			printInfo("serving on http://%s", addr)
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "engine config file (TOML)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}
