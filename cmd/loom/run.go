package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/askiada/go-loom/pkg/pipeline"
	"github.com/askiada/go-loom/pkg/pipeline/drawer"
	"github.com/askiada/go-loom/pkg/pipeline/measure"
	"github.com/askiada/go-loom/pkg/pipeline/model"
)

type runOptions struct {
	*rootOptions
	mode        string
	workers     int
	timeout     time.Duration
	dot         string
	metricsAddr string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and print the datasets of its terminal steps as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "", "execution mode: sequential or parallel, overrides the document")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker pool size in parallel mode, overrides the document")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "run timeout, overrides the document")
	cmd.Flags().StringVar(&opts.dot, "dot", "", "write the executed graph with its timings to this DOT file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

func (o *runOptions) loomOptions(logger *slog.Logger) ([]pipeline.Option, error) {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	switch model.ExecutionMode(o.mode) {
	case "":
	case model.SequentialMode, model.ParallelMode:
		opts = append(opts, pipeline.WithMode(model.ExecutionMode(o.mode)))
	default:
		return nil, errors.Errorf("unknown mode %q", o.mode)
	}

	if o.workers < 0 {
		return nil, errors.New("workers must not be negative")
	}

	opts = append(opts, pipeline.WithWorkers(o.workers), pipeline.WithRunTimeout(o.timeout))

	if o.dot != "" {
		m := measure.NewDefaultMeasure()
		opts = append(opts, pipeline.WithPipelineOptions(
			measure.PipelineMeasure(m),
			drawer.PipelineDrawer(drawer.NewDOTDrawer(o.dot), m),
		))
	}

	return opts, nil
}

func (o *runOptions) run(ctx context.Context, cmd *cobra.Command) error {
	logger, err := o.logger(cmd)
	if err != nil {
		return err
	}

	opts, err := o.loomOptions(logger)
	if err != nil {
		return err
	}

	prj, err := o.load(logger)
	if err != nil {
		return err
	}
	defer prj.close()

	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts = append(opts, pipeline.WithPipelineOptions(measure.PipelinePrometheus(reg)))

		stop, err := serveMetrics(o.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	store, err := prj.doc.OpenShuttle(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	l, err := pipeline.New(store, opts...)
	if err != nil {
		return err
	}

	res, err := l.Run(ctx, prj.p, nil)
	if err != nil {
		return err
	}

	return printOutputs(cmd.OutOrStdout(), res)
}

func printOutputs(w io.Writer, res *pipeline.Result) error {
	out := make(map[string][]model.Row, len(res.Outputs))
	for name, ds := range res.Outputs {
		out[name] = ds.Rows
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode outputs")
	}

	_, err = fmt.Fprintln(w, string(raw))

	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", lis.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
