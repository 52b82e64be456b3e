// Command loom runs data pipelines described in YAML documents.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/config"
	"github.com/askiada/go-loom/pkg/pipeline"
)

const (
	exitFailure    = 1
	exitValidation = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, err)

	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, pipeline.ErrValidation) || errors.Is(err, config.ErrInvalidDocument) {
		return exitValidation
	}

	return exitFailure
}
