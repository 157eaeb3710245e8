package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skarzi/matrixci/internal/api"
	"github.com/skarzi/matrixci/internal/flags"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve past run state over HTTP",
	Long: `Serve read-only run state over HTTP from the state directory.

Endpoints:
  GET /healthz
  GET /runs
  GET /runs/{id}
  GET /runs/{id}/artifacts
  GET /runs/{id}/artifacts/{name}/files/{path}

Examples:
  matrixci serve --listen :8320
  curl localhost:8320/runs
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := api.NewServer(cfg.Run.StateDir, cfg.Runtime.Verbose)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Serving run state from %s on %s\n", cfg.Run.StateDir, serveListen)
		return server.ListenAndServe(ctx, serveListen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, flags.FlagListen, ":8320", "Address to listen on (default: :8320)")
	serveCmd.Flags().StringVar(&cfg.Run.StateDir, flags.FlagStateDir, cfg.Run.StateDir, "Directory run state was written to (default: .matrixci)")
}
