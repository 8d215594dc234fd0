package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/marcomuellner/otto/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "otto",
		Usage: "Your personal AI assistant's scheduler, queue, and control plane",
		Commands: []*cli.Command{
			runHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
