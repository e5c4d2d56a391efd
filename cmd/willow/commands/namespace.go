package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meadowlark-sync/willow/pkg/config"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// NamespaceCmd groups operations on the namespace key that owns a willow
// store (the key that signs initial authorisations for owned capabilities).
var NamespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage the namespace key that owns this store",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate (or show) the namespace key",
	RunE:  runNamespaceCreate,
}

var namespaceForce bool

func init() {
	namespaceCreateCmd.Flags().BoolVar(&namespaceForce, "force", false, "overwrite an existing key")
	NamespaceCmd.AddCommand(namespaceCreateCmd)
}

func runNamespaceCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var key meadowkey.NamespaceSecretKey
	if namespaceForce {
		key, err = meadowkey.GenerateNamespaceKey()
		if err != nil {
			return fmt.Errorf("failed to generate namespace key: %w", err)
		}
		if err := meadowkey.SaveNamespaceSecretKey(cfg.Identity.NamespaceKeyPath, key); err != nil {
			return fmt.Errorf("failed to save namespace key: %w", err)
		}
	} else {
		key, err = meadowkey.LoadOrGenerateNamespaceSecretKey(cfg.Identity.NamespaceKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load or generate namespace key: %w", err)
		}
	}

	fmt.Printf("Namespace key: %s\n", cfg.Identity.NamespaceKeyPath)
	fmt.Printf("Namespace id:  %s\n", meadowkey.DIDKey(key.Public))
	return nil
}
