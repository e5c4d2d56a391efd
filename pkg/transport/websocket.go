// Package transport multiplexes a session's two logical channels (Control,
// Reconciliation) over a single physical connection. It is the network
// counterpart to pkg/channel's in-memory Session: wherever an in-process
// test wires two channel.Session values together directly, a real `willow
// serve`/`willow sync` pair wires each one to a websocket.Conn via this
// package instead, so pkg/session's drivers never know the difference.
package transport

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/channel"
	"github.com/meadowlark-sync/willow/pkg/wire"
)

// logicalByte tags a physical WebSocket binary message with which of the two
// logical channels it belongs to, so both can share one connection.
type logicalByte byte

const (
	logicalControl        logicalByte = 0
	logicalReconciliation logicalByte = 1
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // origin checked by caller via AllowedOrigins
}

// channelCapacity bounds each logical channel's in-memory buffer; the
// websocket connection itself provides the actual backpressure once it
// fills, so this only needs to be large enough to avoid needless stalls.
const channelCapacity = 64

// Bind wires conn's frames to a freshly created channel.Session, running
// the pumps in background goroutines tied to ctx. The returned Session is
// what pkg/session.RunSession drives; cancelling ctx tears down the
// connection, while closing one of the Session's outbound channels only
// stops the write pump for that logical channel.
func Bind(ctx context.Context, conn *websocket.Conn, log *zap.SugaredLogger) channel.Session {
	local, remote := newLoopbackEnds()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go readPump(ctx, conn, remote, log)
	go writePump(ctx, conn, remote, log)

	return local
}

// newLoopbackEnds builds a Session whose Control/Reconciliation Pair.Outbound
// channels are fed by writePump (draining into the wire) and whose Inbound
// channels are fed by readPump (filling from the wire); "remote" here names
// the pumps' own view, kept separate from "local" (the caller's view) purely
// for readability.
func newLoopbackEnds() (local, remote channel.Session) {
	control := channel.New(channelCapacity)
	controlReply := channel.New(channelCapacity)
	reconciliation := channel.New(channelCapacity)
	reconciliationReply := channel.New(channelCapacity)

	local = channel.Session{
		Control:        channel.Pair{Outbound: control, Inbound: controlReply},
		Reconciliation: channel.Pair{Outbound: reconciliation, Inbound: reconciliationReply},
	}
	remote = channel.Session{
		Control:        channel.Pair{Outbound: controlReply, Inbound: control},
		Reconciliation: channel.Pair{Outbound: reconciliationReply, Inbound: reconciliation},
	}
	return local, remote
}

// readPump reads binary WebSocket messages off conn and enqueues each
// payload (minus its leading logical tag byte) onto the matching outbound
// channel of `remote`, i.e. the direction that delivers it to the local
// caller's Inbound side.
func readPump(ctx context.Context, conn *websocket.Conn, remote channel.Session, log *zap.SugaredLogger) {
	defer remote.Close()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if log != nil {
				log.Debugw("websocket read pump exiting", "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage || len(data) < 1 {
			continue
		}

		tag, payload := logicalByte(data[0]), data[1:]
		framed := make([]byte, len(payload))
		copy(framed, payload)

		var target *channel.Channel
		switch tag {
		case logicalControl:
			target = remote.Control.Outbound
		case logicalReconciliation:
			target = remote.Reconciliation.Outbound
		default:
			continue
		}

		if err := target.Send(ctx, framed); err != nil {
			return
		}
	}
}

// writePump drains remote's two Inbound channels (the directions the local
// caller writes to) and writes each frame to conn tagged with its logical
// channel, multiplexing both onto the one physical connection.
func writePump(ctx context.Context, conn *websocket.Conn, remote channel.Session, log *zap.SugaredLogger) {
	errs := make(chan error, 2)
	go func() { errs <- pumpOne(ctx, conn, remote.Control.Inbound, logicalControl) }()
	go func() { errs <- pumpOne(ctx, conn, remote.Reconciliation.Inbound, logicalReconciliation) }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && log != nil {
			log.Debugw("websocket write pump exiting", "error", err)
		}
	}
}

func pumpOne(ctx context.Context, conn *websocket.Conn, ch *channel.Channel, tag logicalByte) error {
	for {
		frame, err := ch.Recv(ctx)
		if err != nil {
			return err
		}

		out := make([]byte, 1+len(frame))
		out[0] = byte(tag)
		copy(out[1:], frame)

		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return errors.Wrap(err, "failed to write websocket frame")
		}
	}
}

// ExchangeCommitments performs the out-of-band step session.NewStateWithNonce
// depends on: it sends hash(ourNonce) as a single raw binary WebSocket
// message and reads the peer's equivalent, so both sides learn each other's
// commitment before exchanging a single session.Setup message. Must run
// before Bind starts multiplexing the connection.
func ExchangeCommitments(conn *websocket.Conn, ourCommitment wire.Commitment) (wire.Commitment, error) {
	errs := make(chan error, 1)
	go func() {
		errs <- conn.WriteMessage(websocket.BinaryMessage, ourCommitment[:])
	}()

	var theirCommitment wire.Commitment
	kind, data, err := conn.ReadMessage()
	if werr := <-errs; werr != nil {
		return theirCommitment, errors.Wrap(werr, "failed to send commitment")
	}
	if err != nil {
		return theirCommitment, errors.Wrap(err, "failed to read peer commitment")
	}
	if kind != websocket.BinaryMessage || len(data) != len(theirCommitment) {
		return theirCommitment, errors.Newf("malformed commitment message: kind=%d len=%d", kind, len(data))
	}
	copy(theirCommitment[:], data)
	return theirCommitment, nil
}

// Upgrade upgrades an incoming HTTP request to a WebSocket connection, for
// use by the `willow serve` command's handler.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upgrade to websocket")
	}
	return conn, nil
}

// Dial opens a WebSocket connection to addr (a ws:// or wss:// URL), for use
// by the `willow sync` command.
func Dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	return conn, nil
}
