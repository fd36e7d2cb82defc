// Command handler runs one per-network Handler process: scanner,
// conductors, notifier, refreshers, and the admin HTTP API of spec.md §2,
// §6, wired the way klaytn's cmd/kcn wires a cli.App around node.New/Start.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/handler"
	"github.com/procnet/custodian/internal/handler/config"
)

var logger = log.New("cmd.handler")

func main() {
	app := cli.NewApp()
	app.Name = "handler"
	app.Usage = "run one network's custodial deposit/withdrawal handler"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a TOML configuration overlay"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	var overlay *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		overlay = loaded
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if overlay != nil {
		applyOverlay(cfg, overlay)
	}

	h, err := handler.New(cfg)
	if err != nil {
		logger.Crit("starting handler", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	return h.Run(ctx)
}

// applyOverlay fills any field the environment left zero from the TOML
// overlay, letting an operator keep rarely-changed settings (provider
// URLs, coin table) out of the process environment.
func applyOverlay(cfg, overlay *config.Config) {
	if cfg.HandlerName == "" {
		cfg.HandlerName = overlay.HandlerName
	}
	if cfg.HandlerDisplay == "" {
		cfg.HandlerDisplay = overlay.HandlerDisplay
	}
	if len(cfg.Coins) == 0 {
		cfg.Coins = overlay.Coins
	}
	if len(cfg.ProviderURLs) == 0 {
		cfg.ProviderURLs = overlay.ProviderURLs
		cfg.ProviderAPIKeys = overlay.ProviderAPIKeys
	}
}
