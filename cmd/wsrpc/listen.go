package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	listenRaw     bool
	listenTimeout time.Duration
)

var listenCmd = &cobra.Command{
	Use:     "listen <channel>...",
	Short:   "Subscribe to channels and print notifications until interrupted",
	Example: `  wsrpc listen ticker.BTC-PERPETUAL.raw book.BTC-PERPETUAL.100ms`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// 监听退出信号
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		setupCtx, cancel := context.WithTimeout(ctx, listenTimeout)
		defer cancel()
		cli, err := connect(setupCtx)
		if err != nil {
			return err
		}
		defer cli.Close()

		accepted, err := cli.Subscribe(setupCtx, args...)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		logger.Info("subscribed", zap.Strings("channels", accepted))

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case note, ok := <-cli.Notifications():
				if !ok {
					return cli.Err()
				}
				if listenRaw {
					fmt.Fprintln(cmd.OutOrStdout(), string(note.Raw))
					continue
				}
				if err := enc.Encode(map[string]any{
					"channel": note.Channel,
					"data":    note.Params,
				}); err != nil {
					return err
				}
			case <-ctx.Done():
				unsubCtx, cancelUnsub := context.WithTimeout(context.Background(), listenTimeout)
				_, err := cli.Unsubscribe(unsubCtx, args...)
				cancelUnsub()
				if err != nil {
					logger.Warn("unsubscribe", zap.Error(err))
				}
				return nil
			}
		}
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenRaw, "raw", false, "print the complete notification frames")
	listenCmd.Flags().DurationVar(&listenTimeout, "timeout", defaultTimeout, "dial and subscribe deadline")
}
