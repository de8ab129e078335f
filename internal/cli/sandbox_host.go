package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox/host"
	"github.com/spf13/cobra"
)

func newSandboxHostCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sandbox-host",
		Short: "Run the isolated sandbox origin",
		Long: `sandbox-host serves the sandbox side of the protocol: parents connect over
/ws, push a snapshot, and the previews are served from /preview/<port>/ on
this origin. Only the configured parent origins may connect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				a.cfg.Sandbox.HostAddr = addr
			}
			h := host.New(a.cfg, nil, a.logger, monitoring.NewMetrics())
			return h.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
