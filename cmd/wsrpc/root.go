package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-wsrpc/client"
	"mini-wsrpc/config"
	"mini-wsrpc/loadbalance"
	"mini-wsrpc/logging"
	"mini-wsrpc/registry"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	Endpoint   string
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "wsrpc",
	Short: "JSON-RPC over a multiplexed websocket",
	Long: `wsrpc issues JSON-RPC requests and listens for subscription
notifications over one multiplexed connection.

Settings come from defaults, then --config, then WSRPC_* variables,
then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(globalFlags.ConfigPath)
		if err != nil {
			return err
		}
		if globalFlags.LogLevel != "" {
			cfg.Log.Level = globalFlags.LogLevel
		}
		if globalFlags.Endpoint != "" {
			cfg.Client.Endpoint = globalFlags.Endpoint
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "JSON config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Endpoint, "endpoint", "e", "", "ws://, wss:// or tcp:// URL; skips discovery")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(serveCmd)
}

// newRegistry returns etcd when endpoints are configured, else the named
// endpoint table of cfg.Client.Network.
func newRegistry() (registry.Registry, func(), error) {
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout.Std(), logger)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { _ = reg.Close() }, nil
	}
	reg, err := registry.NewNetworkRegistry(cfg.Client.Network, cfg.Client.Service)
	if err != nil {
		return nil, nil, err
	}
	return reg, func() {}, nil
}

// connect dials the configured endpoint, or discovers one.
func connect(ctx context.Context) (*client.Client, error) {
	opts := append(client.FromConfig(cfg.Client), client.WithLogger(logger))
	if cfg.Client.Endpoint != "" {
		return client.Dial(ctx, cfg.Client.Endpoint, opts...)
	}

	reg, closeReg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	defer closeReg()
	bal, err := loadbalance.ByName(cfg.Client.Balancer)
	if err != nil {
		return nil, err
	}
	return client.DialService(ctx, reg, bal, cfg.Client.Service, opts...)
}
