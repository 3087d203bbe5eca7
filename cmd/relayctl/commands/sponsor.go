package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/server/sponsor"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// loadMnemonic takes the mnemonic from the environment or prompts for it
// without echo.
func loadMnemonic(w io.Writer) (string, error) {
	if m := strings.TrimSpace(os.Getenv(mnemonicEnv)); m != "" {
		return m, nil
	}
	fmt.Fprint(w, "Mnemonic: ")
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func loadSponsor(cmd *cobra.Command) (*sponsor.Sponsor, error) {
	if appFID <= 0 {
		return nil, fmt.Errorf("--fid must be positive")
	}
	m, err := loadMnemonic(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return sponsor.FromMnemonic(appFID, m)
}

func sponsorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sponsor",
		Short: "Inspect the app sponsor identity",
	}
	cmd.AddCommand(sponsorAddressCmd(), sponsorSignCmd())
	return cmd
}

func sponsorAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the custody address derived from the mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := loadSponsor(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fid: %d\naddress: %s\n", sp.FID(), sp.Address().Hex())
			return nil
		},
	}
}

func sponsorSignCmd() *cobra.Command {
	var (
		key string
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a key request for a signer public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := hexutil.Decode(key)
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			sp, err := loadSponsor(cmd)
			if err != nil {
				return err
			}

			s, err := sp.SignKeyRequest(pub, time.Now().Add(ttl))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"request_fid": s.RequestFID,
				"key":         hexutil.Encode(s.Key),
				"deadline":    s.Deadline.Unix(),
				"signature":   hexutil.Encode(s.Signature),
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "signer public key (0x hex)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "how long the request stays valid")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
