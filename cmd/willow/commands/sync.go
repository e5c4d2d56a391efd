package commands

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	qdb "github.com/meadowlark-sync/willow/db"
	"github.com/meadowlark-sync/willow/logger"
	"github.com/meadowlark-sync/willow/pkg/config"
	"github.com/meadowlark-sync/willow/pkg/session"
	"github.com/meadowlark-sync/willow/pkg/store"
	"github.com/meadowlark-sync/willow/pkg/transport"
)

// SyncCmd dials a peer and drives one sync session to completion as the
// initiator (Alfie) side.
var SyncCmd = &cobra.Command{
	Use:   "sync <addr>",
	Short: "Connect to a peer and synchronize entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	conn, err := qdb.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()
	sqlStore := store.NewSQLite(conn)

	identity, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	addr := args[0]

	if _, err := transport.ValidateSyncAddr(addr); err != nil {
		return err
	}

	logger.Infow("willow sync dialing", "addr", addr)
	wsConn, err := transport.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer wsConn.Close()

	return runSyncSession(ctx, wsConn, sqlStore, cfg, identity)
}

// runSyncSession drives one outbound connection to completion as Alfie.
func runSyncSession(ctx context.Context, wsConn *websocket.Conn, st store.Store, cfg *config.Config, identity identityMaterial) error {
	ourNonce, err := session.NewNonce()
	if err != nil {
		return fmt.Errorf("failed to generate commitment nonce: %w", err)
	}
	theirCommitment, err := transport.ExchangeCommitments(wsConn, session.Commitment(ourNonce))
	if err != nil {
		return fmt.Errorf("commitment exchange failed: %w", err)
	}

	state := session.NewStateWithNonce(session.RoleAlfie, ourNonce, theirCommitment)
	chans := transport.Bind(ctx, wsConn, logger.Logger)

	setup := buildSetup(identity)
	if err := session.RunSession(ctx, state, chans, st, cfg.Sync.StoreSyncConfig(), setup); err != nil {
		return fmt.Errorf("session ended: %w", err)
	}

	logger.Infow("sync complete")
	return nil
}
