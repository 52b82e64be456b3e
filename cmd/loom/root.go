package main

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-loom/pkg/config"
	"github.com/askiada/go-loom/pkg/pipeline"
	"github.com/askiada/go-loom/pkg/source"
	"github.com/askiada/go-loom/pkg/transform"
)

type rootOptions struct {
	file     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "Run data integration pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "pipeline.yaml", "pipeline document")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newGraphCmd(opts),
		newWatchCmd(opts),
	)

	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", o.logLevel)
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}

// project is a loaded document with its validated pipeline.
type project struct {
	doc     *config.Document
	p       *pipeline.Pipeline
	sources *source.Registry
	close   func() error
}

func (o *rootOptions) load(logger *slog.Logger) (*project, error) {
	doc, err := config.Load(o.file)
	if err != nil {
		return nil, err
	}

	sources, closer, err := doc.Adapters(logger)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.Load(doc.Spec(), pipeline.NewRegistry(sources, transform.Builtins()))
	if err != nil {
		_ = closer.Close()

		return nil, err
	}

	return &project{doc: doc, p: p, sources: sources, close: closer.Close}, nil
}
