package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const defaultTimeout = 10 * time.Second

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Send one request and print its result",
	Example: `  wsrpc call public/get_time
  wsrpc call public/get_instruments '{"currency":"BTC","kind":"future"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("params are not valid JSON: %s", args[1])
			}
			params = json.RawMessage(args[1])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		cli, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()

		var p any
		if params != nil {
			p = params
		}
		result, err := cli.Request(ctx, args[0], p)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, result, "", "  "); err != nil {
			out.Reset()
			out.Write(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", defaultTimeout, "dial plus call deadline")
}
