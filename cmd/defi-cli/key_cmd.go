package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deficore/cmd/internal/passphrase"
	"deficore/config"
	"deficore/crypto"
	"deficore/rpc"
)

type tokenOptions struct {
	Secret   string
	Issuer   string
	TTL      time.Duration
	Address  string
	Keystore string
}

// newTokenCommand mints a bearer token for the RPC server. The signing secret
// is the one defid validates against.
func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token naming a caller address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := resolveCaller(opts)
			if err != nil {
				return err
			}
			token, err := rpc.IssueToken(opts.Secret, opts.Issuer, caller, opts.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Secret, "secret", os.Getenv(config.EnvJWTSecret), "HMAC signing secret (defaults to $"+config.EnvJWTSecret+")")
	flags.StringVar(&opts.Issuer, "issuer", "deficore", "token issuer")
	flags.DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	flags.StringVar(&opts.Address, "address", "", "caller address")
	flags.StringVar(&opts.Keystore, "keystore", "", "keystore whose address becomes the caller")
	return cmd
}

func resolveCaller(opts *tokenOptions) (crypto.Address, error) {
	address := strings.TrimSpace(opts.Address)
	keystore := strings.TrimSpace(opts.Keystore)
	switch {
	case address != "" && keystore != "":
		return crypto.Address{}, errors.New("--address and --keystore are mutually exclusive")
	case address != "":
		return crypto.DecodeAddress(address)
	case keystore != "":
		pass, err := passphrase.NewSource(config.EnvKeystorePassphrase, "keystore", passphrase.AllowEmpty()).Get()
		if err != nil {
			return crypto.Address{}, err
		}
		key, err := crypto.LoadFromKeystore(keystore, pass)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("load keystore: %w", err)
		}
		return key.PubKey().Address(), nil
	default:
		return crypto.Address{}, errors.New("one of --address or --keystore is required")
	}
}

func newKeygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key and write it to an encrypted keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}
			pass, err := passphrase.NewSource(config.EnvKeystorePassphrase, "new keystore").Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(out, key, pass); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().Address().String())
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "wallet.keystore", "keystore path")
	return cmd
}
