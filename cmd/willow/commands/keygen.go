package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meadowlark-sync/willow/pkg/config"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// KeygenCmd generates (or shows) the local user identity key used to
// receive capabilities and author entries.
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate (or show) the local user identity key",
	Long: `keygen generates an Ed25519 user key and writes it to the path
configured by identity.key_path (default ~/.willow/identity.key). If a
key already exists there, it is shown instead of being overwritten,
unless --force is given.`,
	RunE: runKeygen,
}

var keygenForce bool

func init() {
	KeygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var key meadowkey.UserSecretKey
	if keygenForce {
		key, err = meadowkey.GenerateUserKey()
		if err != nil {
			return fmt.Errorf("failed to generate user key: %w", err)
		}
		if err := meadowkey.SaveUserSecretKey(cfg.Identity.KeyPath, key); err != nil {
			return fmt.Errorf("failed to save user key: %w", err)
		}
	} else {
		key, err = meadowkey.LoadOrGenerateUserSecretKey(cfg.Identity.KeyPath)
		if err != nil {
			return fmt.Errorf("failed to load or generate user key: %w", err)
		}
	}

	fmt.Printf("Identity key:  %s\n", cfg.Identity.KeyPath)
	fmt.Printf("Public key:    %s\n", meadowkey.DIDKey(key.Public))
	return nil
}
