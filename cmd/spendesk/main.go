package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bota93/spendesk/internal/cli"
	apphttp "github.com/Bota93/spendesk/internal/http"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	relay := cli.NewRelay(cfg, logger)
	defer relay.Close()

	res := cli.OpenBackend(ctx, cfg, relay.Publisher(), logger)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	srv := apphttp.NewServer(cfg, res, relay.Bus, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting spendesk server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return relay.Forward(gctx)
	})

	// With a broker the reaper runs in spendesk-worker.
	if res.Repository != nil && relay.AMQP == nil {
		reaper := worker.NewDemoReaper(res.Repository, relay.Publisher(), cfg.DemoMaxIdle, cfg.DemoReapInterval, logger)
		g.Go(func() error {
			return reaper.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
