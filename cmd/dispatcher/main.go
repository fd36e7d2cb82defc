// Command dispatcher runs the orchestration service in front of the
// per-network Handlers: customer/user identity, request fan-out, and the
// callback worker (spec.md §1, §2).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/dispatcher"
	"github.com/procnet/custodian/internal/dispatcher/config"
)

var logger = log.New("cmd.dispatcher")

func main() {
	app := cli.NewApp()
	app.Name = "dispatcher"
	app.Usage = "run the customer-facing orchestration service"
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	d, err := dispatcher.New(cfg)
	if err != nil {
		logger.Crit("starting dispatcher", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	return d.Run(ctx)
}
