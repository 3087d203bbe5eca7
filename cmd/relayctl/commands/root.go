// Package commands implements relayctl, the operator CLI for the relay.
package commands

import (
	"github.com/spf13/cobra"
)

const mnemonicEnv = "FARCASTER_DEVELOPER_MNEMONIC"

var (
	appFID int64
	dsn    string
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operator tools for the signer relay",
		SilenceUsage:  true,
	}

	root.PersistentFlags().Int64Var(&appFID, "fid", 0, "app fid used as the sponsor")

	root.AddCommand(sponsorCmd(), migrateCmd(), healthCmd())
	return root
}
