package main

import (
	"fmt"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph.yaml|graph.json>",
	Short: "Check a graph file for consistency",
	Long:  `Validates the graph structure and reports problems that would surface at run time: malformed conditions, unknown tools and unreachable nodes.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")

		doc, g, err := cli.LoadDocument(args[0], "validate")
		if err != nil {
			return err
		}
		eng, err := flowline.New(flowline.WithLogger(logger))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, key := range doc.Unused {
			fmt.Fprintf(out, "warning: unknown key %q\n", key)
		}
		issues := eng.Lint(g)
		for _, issue := range issues {
			fmt.Fprintf(out, "warning: %s\n", issue)
		}
		if strict && len(issues) > 0 {
			return fmt.Errorf("%d issue(s) found", len(issues))
		}
		fmt.Fprintf(out, "Graph is valid (%d nodes, start %q)\n", len(g.Nodes()), g.StartNode())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}
