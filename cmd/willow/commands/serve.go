package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	qdb "github.com/meadowlark-sync/willow/db"
	"github.com/meadowlark-sync/willow/logger"
	"github.com/meadowlark-sync/willow/pkg/config"
	"github.com/meadowlark-sync/willow/pkg/session"
	"github.com/meadowlark-sync/willow/pkg/store"
	"github.com/meadowlark-sync/willow/pkg/transport"
)

// ServeCmd hosts the local entry store and accepts incoming sync sessions
// over WebSocket, acting as the responder (Betty) side of every session it
// accepts.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the local store and accept incoming sync sessions",
	RunE:  runServe,
}

var serveListenAddr string

func init() {
	ServeCmd.Flags().StringVar(&serveListenAddr, "listen", "", "listen address (overrides server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	listenAddr := cfg.Server.ListenAddr
	if serveListenAddr != "" {
		listenAddr = serveListenAddr
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

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := transport.Upgrade(w, r)
		if err != nil {
			logger.Errorw("websocket upgrade failed", "error", err)
			return
		}
		go runServeSession(r.Context(), wsConn, sqlStore, cfg, identity)
	})

	logger.Infow("willow serve listening", "addr", listenAddr)
	return http.ListenAndServe(listenAddr, mux)
}

// runServeSession drives one inbound connection to completion as Betty,
// logging (rather than propagating) any failure so one bad peer cannot
// bring down the listener goroutine.
func runServeSession(ctx context.Context, wsConn *websocket.Conn, st store.Store, cfg *config.Config, identity identityMaterial) {
	defer wsConn.Close()

	ourNonce, err := session.NewNonce()
	if err != nil {
		logger.Errorw("failed to generate commitment nonce", "error", err)
		return
	}
	theirCommitment, err := transport.ExchangeCommitments(wsConn, session.Commitment(ourNonce))
	if err != nil {
		logger.Errorw("commitment exchange failed", "error", err)
		return
	}

	state := session.NewStateWithNonce(session.RoleBetty, ourNonce, theirCommitment)
	chans := transport.Bind(ctx, wsConn, logger.Logger)

	setup := buildSetup(identity)
	if err := session.RunSession(ctx, state, chans, st, cfg.Sync.StoreSyncConfig(), setup); err != nil {
		logger.Warnw("session ended", "error", err)
	}
}
