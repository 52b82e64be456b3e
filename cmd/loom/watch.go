package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const watchDebounce = 200 * time.Millisecond

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline every time its document changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.watch(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "", "execution mode: sequential or parallel, overrides the document")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker pool size in parallel mode, overrides the document")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "run timeout, overrides the document")

	return cmd
}

func (o *runOptions) watch(ctx context.Context, cmd *cobra.Command) error {
	logger, err := o.logger(cmd)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(o.file)
	if err != nil {
		return errors.Wrapf(err, "unable to resolve %s", o.file)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create file watcher")
	}
	defer watcher.Close()

	// editors replace files on save, watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "unable to watch %s", filepath.Dir(path))
	}

	rerun := func() {
		if err := o.run(ctx, cmd); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}

	rerun()

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			debounce = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("file watcher failed", slog.String("error", err.Error()))
		case <-debounce:
			debounce = nil
			logger.Info("document changed, running again", slog.String("file", path))
			rerun()
		}
	}
}
