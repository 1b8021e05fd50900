package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-wsrpc/metrics"
	"mini-wsrpc/middleware"
	"mini-wsrpc/registry"
	"mini-wsrpc/server"
)

const version = "0.1.0"

var (
	serveTicker  time.Duration
	serveChannel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a JSON-RPC websocket server to test clients against",
	Long: `serve answers public/test and public/get_time, supports
public/subscribe and public/unsubscribe, and publishes the server time on
--channel every --ticker interval.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := []server.Option{
			server.WithLogger(logger),
			server.WithWorkers(cfg.Server.Workers),
			server.WithPath(cfg.Server.Path),
		}
		if cfg.Server.MetricsPath != "" {
			m := metrics.NewServer(prometheus.DefaultRegisterer)
			opts = append(opts, server.WithMetrics(m, prometheus.DefaultGatherer, cfg.Server.MetricsPath))
		}
		if cfg.Server.Service != "" {
			if len(cfg.Registry.Endpoints) == 0 {
				logger.Warn("server.service set without registry endpoints, not registering")
			} else {
				reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout.Std(), logger)
				if err != nil {
					return err
				}
				defer reg.Close()
				inst := registry.ServiceInstance{Addr: cfg.Server.Advertise, Weight: cfg.Server.Weight, Version: version}
				opts = append(opts, server.WithRegistry(reg, cfg.Server.Service, inst, cfg.Registry.TTL))
			}
		}

		svr, err := server.New(opts...)
		if err != nil {
			return err
		}
		svr.Use(middleware.Logging(logger))
		registerDemoHandlers(svr)

		served := make(chan error, 1)
		go func() { served <- svr.ListenAndServe(cfg.Server.Addr) }()
		if serveTicker > 0 {
			go publishTime(ctx, svr)
		}

		select {
		case err := <-served:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		err = svr.Shutdown(shutdownCtx)
		if serveErr := <-served; serveErr != nil {
			err = errors.Join(err, serveErr)
		}
		return err
	},
}

func registerDemoHandlers(svr *server.Server) {
	svr.HandleFunc("public/test", func(context.Context, json.RawMessage) (any, error) {
		return map[string]string{"version": version}, nil
	})
	svr.HandleFunc("public/get_time", func(context.Context, json.RawMessage) (any, error) {
		return time.Now().UnixMilli(), nil
	})
}

// publishTime pushes the server clock until ctx ends.
func publishTime(ctx context.Context, svr *server.Server) {
	ticker := time.NewTicker(serveTicker)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			if _, err := svr.Publish(serveChannel, map[string]int64{"timestamp": t.UnixMilli()}); err != nil {
				logger.Warn("publish", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	serveCmd.Flags().DurationVar(&serveTicker, "ticker", time.Second, "publish interval, 0 disables")
	serveCmd.Flags().StringVar(&serveChannel, "channel", "server.time", "channel the clock is published on")
}
