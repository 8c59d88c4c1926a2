package main

import (
	"context"
	"os"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/cli"
	"github.com/TF-SoftwareEmergentes/livecall/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	deps := &cli.Dependencies{}
	err := cli.NewRootCmd(deps).Execute()

	// pending notifications get a bounded grace period
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cerr := deps.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
