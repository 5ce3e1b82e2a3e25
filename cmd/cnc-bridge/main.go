// cnc-bridge forwards CNCjs controller telemetry to an MQTT bus and keeps the
// CNCjs access token fresh from credentials published on the same bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/bridge"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/logging"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logLevel, metricsAddr string

	flagSet := pflag.NewFlagSet("cnc-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "bridge.yaml", "path to the YAML configuration file")
	flagSet.StringVar(&logLevel, "log-level", "", "log level, overrides log.level")
	flagSet.StringVar(&metricsAddr, "metrics-addr", "", "listen address of /metrics and /health, overrides metrics.addr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	conf, err := utils.LoadBridgeConfig(configPath)
	if err != nil {
		return errors.Wrapf(err, "load %s", configPath)
	}
	if flagSet.Changed("log-level") {
		conf.Log.Level = logLevel
	}
	if flagSet.Changed("metrics-addr") {
		conf.Metrics.Addr = metricsAddr
	}

	logger := logging.NewLogrus(conf.Log.Level, conf.Log.Format, os.Stdout)
	log := logger.Get("Main")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	messaging, err := bridge.NewMessaging(conf.Bus, logger.Get("Bus"))
	if err != nil {
		return err
	}
	b, err := bridge.NewBridge(conf, messaging, logger, registry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		return err
	}

	server := bridge.NewMetricsServer(conf.Metrics.Addr, registry, b)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
	log.Infof("Serving metrics on %s", conf.Metrics.Addr)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Metrics server shutdown: %v", err)
	}
	return b.Stop()
}
