package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/crypt"
	"github.com/ragdesk/ragdesk/internal/keyfile"
)

func newKeygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a token encryption key",
		Long: `Generate a random 32-byte key for encrypting stored OAuth tokens and
uploaded files, encoded as base64.

Without --out the key is printed for use as ENCRYPTION_KEY. With --out it is
written to a 0600 file suitable for crypto.key_file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runKeygen(out, force)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "write the key to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key file")

	return cmd
}

func runKeygen(out string, force bool) error {
	key, err := crypt.GenerateKey()
	if err != nil {
		return err
	}

	if out == "" {
		fmt.Fprintln(os.Stdout, key)
		return nil
	}

	if err := keyfile.Save(out, key, force); err != nil {
		return err
	}

	statusf(flagQuiet, "Key written to %s\n", out)

	return nil
}
