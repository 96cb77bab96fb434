package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"gasbridge/config"
	"gasbridge/internal/logging"
	"gasbridge/internal/reload"
	"gasbridge/mqtt"
	"gasbridge/service"
	"gasbridge/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthcheck := flag.Bool("healthcheck", false, "Run a health check and exit")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	flag.Parse()

	if *healthcheck || *configCheck {
		if err := executeConfigCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration check completed successfully.")
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}

	if cfg.HotReload {
		if err := runWithHotReload(ctx, *cfgPath, cfg, collector); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("service stopped")
		}
		return
	}

	if err := run(ctx, cfg, collector); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("service stopped")
	}
}

// run wires the service once and blocks until the context is cancelled.
func run(ctx context.Context, cfg *config.Config, collector telemetry.Collector) error {
	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()
	log.Logger = logger

	store, err := config.OpenEntryStore(cfg.Entries)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithCollector(collector)}

	if cfg.MQTT != nil {
		client, err := mqtt.Connect(*cfg.MQTT, logger, nil)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		opts = append(opts, service.WithMQTT(client))
		if len(cfg.Tracker) > 0 {
			tracker, err := mqtt.NewLocationTracker(client, cfg.Tracker, logger)
			if err != nil {
				return err
			}
			opts = append(opts, service.WithLocationSource(tracker))
		}
	}

	svc, err := service.New(cfg, store, logger, opts...)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if cfg.Server.Enabled {
		srv, err := service.NewServer(cfg.Server.Listen, svc, logger)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	<-ctx.Done()
	return ctx.Err()
}

// runWithHotReload restarts the wiring whenever the configuration or entry
// file changes on disk.
func runWithHotReload(ctx context.Context, cfgPath string, initialCfg *config.Config, collector telemetry.Collector) error {
	cfg := initialCfg
	watcher := reload.NewWatcher(cfgPath, cfg.Entries)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- run(runCtx, cfg, collector)
		}()

		reloadRequested := false
	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled {
					return err
				}
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				return err
			case <-ticker.C:
				changes := watcher.Check()
				if len(changes) == 0 {
					continue
				}
				newCfg, err := config.Load(cfgPath)
				if err != nil {
					log.Error().Err(err).Msg("failed to reload configuration")
					watcher.Update(cfgPath, cfg.Entries)
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled {
					log.Error().Err(err).Msg("service stopped during reload")
				}
				watcher.Update(cfgPath, newCfg.Entries)
				cfg = newCfg
				reloadRequested = true
				break loop
			}
		}
		if !reloadRequested {
			return nil
		}
		log.Info().Msg("configuration reloaded")
	}
}

func executeConfigCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, err := config.OpenEntryStore(cfg.Entries); err != nil {
		return err
	}
	return nil
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		return telemetry.NewPrometheusCollector(nil)
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}
