package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	envRPCURL   = "DEFI_RPC_URL"
	envRPCToken = "DEFI_RPC_TOKEN"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	Endpoint string
	Token    string
}

func (o *rootOptions) client() *client {
	return newClient(o.Endpoint, o.Token)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "defi-cli",
		Short:         "Command-line client for a defid node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Endpoint, "rpc", envOr(envRPCURL, "http://localhost:8545"), "JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv(envRPCToken), "bearer token for authenticated calls")

	cmd.AddCommand(
		newCallCommand(opts),
		newBalanceCommand(opts),
		newHeightCommand(opts),
		newAdvanceCommand(opts),
		newEventsCommand(opts),
		newTokenCommand(),
		newKeygenCommand(),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
