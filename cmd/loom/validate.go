package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errUnhealthySources = errors.New("unhealthy sources")

func newValidateCmd(root *rootOptions) *cobra.Command {
	var checkSources bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline and print its steps in execution order",
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

			w := cmd.OutOrStdout()
			for i, name := range prj.p.Order() {
				fmt.Fprintf(w, "%d. %s\n", i+1, name)
			}
			fmt.Fprintf(w, "terminals: %s\n", strings.Join(prj.p.Terminals(), ", "))

			if !checkSources {
				return nil
			}

			failed := prj.sources.HealthCheck(cmd.Context())
			for _, name := range prj.sources.Names() {
				if err, ok := failed[name]; ok {
					fmt.Fprintf(w, "source %s: %v\n", name, err)

					continue
				}
				fmt.Fprintf(w, "source %s: ok\n", name)
			}

			if len(failed) > 0 {
				return errors.Wrapf(errUnhealthySources, "%d of %d", len(failed), len(prj.sources.Names()))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&checkSources, "check-sources", false, "check that every source backend is reachable")

	return cmd
}
