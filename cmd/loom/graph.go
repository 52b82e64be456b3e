package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-loom/pkg/pipeline/drawer"
)

func newGraphCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph of the pipeline in DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := root.logger(cmd)
			if err != nil {
				return err
			}

			prj, err := root.load(logger)
			if err != nil {
				return err
			}
			defer prj.close()

			g, err := prj.p.Graph()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrapf(err, "unable to create %s", output)
				}
				defer f.Close()
				w = f
			}

			return drawer.Render(w, g, drawer.GraphAttribute("rankdir", "LR"))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the graph to this file instead of stdout")

	return cmd
}
