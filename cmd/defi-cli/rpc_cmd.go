package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"deficore/crypto"
)

func newCallCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Invoke any JSON-RPC method",
		Long: `Invoke any JSON-RPC method and print its result.

Example:
  defi-cli call token_transfer '{"to":"dfc1...","amount":"250"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params interface{}
			if len(args) == 2 {
				raw := []byte(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("params must be valid JSON")
				}
				params = json.RawMessage(raw)
			}
			result, err := opts.client().call(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the ledger balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := crypto.DecodeAddress(args[0]); err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			result, err := opts.client().call(cmd.Context(), "token_balance", map[string]string{"address": args[0]})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newHeightCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Show the current logical height and state root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := opts.client().call(cmd.Context(), "protocol_height", nil)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

func newAdvanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advance [height]",
		Short: "Advance the logical clock on a dev-mode node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]uint64{}
			if len(args) == 1 {
				height, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid height %q", args[0])
				}
				params["height"] = height
			}
			result, err := opts.client().call(cmd.Context(), "protocol_advanceHeight", params)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
}

type eventsOptions struct {
	Type          string
	Module        string
	Actor         string
	Subject       string
	FromHeight    uint64
	ToHeight      uint64
	AfterSequence uint64
	Limit         int
}

func newEventsCommand(opts *rootOptions) *cobra.Command {
	f := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the persisted event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.FromHeight > 0 && f.ToHeight > 0 && f.FromHeight > f.ToHeight {
				return fmt.Errorf("--from exceeds --to")
			}
			params := map[string]interface{}{}
			setString := func(key, value string) {
				if value != "" {
					params[key] = value
				}
			}
			setString("type", f.Type)
			setString("module", f.Module)
			setString("actor", f.Actor)
			setString("subject", f.Subject)
			if f.FromHeight > 0 {
				params["fromHeight"] = f.FromHeight
			}
			if f.ToHeight > 0 {
				params["toHeight"] = f.ToHeight
			}
			if f.AfterSequence > 0 {
				params["afterSequence"] = f.AfterSequence
			}
			if f.Limit > 0 {
				params["limit"] = f.Limit
			}
			result, err := opts.client().call(cmd.Context(), "events_query", params)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), result)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.Type, "type", "", "event type, e.g. lending.liquidated")
	flags.StringVar(&f.Module, "module", "", "module prefix of the event type")
	flags.StringVar(&f.Actor, "actor", "", "actor address")
	flags.StringVar(&f.Subject, "subject", "", "subject address")
	flags.Uint64Var(&f.FromHeight, "from", 0, "lowest height (inclusive)")
	flags.Uint64Var(&f.ToHeight, "to", 0, "highest height (inclusive)")
	flags.Uint64Var(&f.AfterSequence, "after", 0, "return events after this sequence number")
	flags.IntVar(&f.Limit, "limit", 100, "maximum number of events")
	return cmd
}

func writeResult(w io.Writer, result json.RawMessage) error {
	if len(result) == 0 {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(result))
		return err
	}
	_, err := fmt.Fprintln(w, pretty.String())
	return err
}
