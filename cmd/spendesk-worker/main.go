package main

import (
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Bota93/spendesk/internal/cli"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	logger.Info("Starting spendesk-worker")

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	relay := cli.NewRelay(cfg, logger)
	defer relay.Close()

	res := cli.OpenBackend(ctx, cfg, relay.Publisher(), logger)
	defer res.Close()

	if res.Repository == nil {
		logger.Error("Demo reaper needs a self-hosted backend",
			log.FieldBackend, cfg.DataBackend,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	reaper := worker.NewDemoReaper(res.Repository, relay.Publisher(), cfg.DemoMaxIdle, cfg.DemoReapInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error { return relay.Forward(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
