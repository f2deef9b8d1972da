package main

import (
	"context"
	"errors"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/internal/cli"
	"github.com/aretw0/flowline/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine over the Model Context Protocol",
	Long: `Speaks MCP on stdin/stdout so an agent can create graphs, run them and
read their results. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		stack, err := cli.NewStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Engine.Close()

		srv := mcp.NewServer(stack.Engine, flowline.Version, mcp.WithLogger(logger))
		logger.Info("serving mcp on stdio", "store", cfg.Store.Backend)
		if err := srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
