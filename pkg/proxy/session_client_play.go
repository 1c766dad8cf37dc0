package proxy

import (
	"context"
	"strings"
	"time"

	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// clientPlaySessionHandler handles packets once a player has spawned into a
// backend server. It is the nerve center that joins backend servers with
// players; the login handshake and plugin/command dispatch that precede it
// are out-of-scope peers.
type clientPlaySessionHandler struct {
	player  *connectedPlayer
	spawned atomic.Bool
}

func newClientPlaySessionHandler(player *connectedPlayer) *clientPlaySessionHandler {
	return &clientPlaySessionHandler{player: player}
}

var _ sessionHandler = (*clientPlaySessionHandler)(nil)

func (c *clientPlaySessionHandler) handlePacket(ctx context.Context, pack proto.Packet) {
	switch p := pack.(type) {
	case *packet.KeepAlive:
		c.handleKeepAlive(p)
	case *packet.Chat:
		c.handleChat(p)
	default:
		c.forwardToServer(pack)
	}
}

func (c *clientPlaySessionHandler) activated()   {}
func (c *clientPlaySessionHandler) deactivated() {}

func (c *clientPlaySessionHandler) forwardToServer(p proto.Packet) {
	if serverMc := c.canForward(); serverMc != nil {
		_ = serverMc.WritePacket(p)
	}
}

func (c *clientPlaySessionHandler) canForward() *minecraftConn {
	serverConn := c.player.connectedServer()
	if serverConn == nil {
		return nil
	}
	return serverConn.conn()
}

func (c *clientPlaySessionHandler) disconnected() {
	c.player.teardown()
}

func (c *clientPlaySessionHandler) handleKeepAlive(p *packet.KeepAlive) {
	serverConn := c.player.connectedServer()
	if serverConn == nil || p.RandomId != serverConn.lastPingId.Load() {
		return
	}
	serverMc := serverConn.conn()
	if serverMc == nil {
		return
	}
	lastPingSent := time.Unix(0, serverConn.lastPingSent.Load())
	c.player.ping.Store(time.Since(lastPingSent))
	if serverMc.WritePacket(p) == nil {
		serverConn.lastPingSent.Store(time.Now().UnixNano())
	}
}

func (c *clientPlaySessionHandler) handleChat(p *packet.Chat) {
	serverConn := c.player.connectedServer()
	if serverConn == nil {
		return
	}
	serverMc := serverConn.conn()
	if serverMc == nil {
		return
	}

	if strings.HasPrefix(p.Message, "/") {
		// Proxy-side command dispatch is an out-of-scope peer;
		// forward the raw command line to the backend like any other chat.
		zap.S().Debugf("%s issuing command: %s", c.player, p.Message)
	} else {
		zap.S().Debugf("chat> %s: %s", c.player, p.Message)
	}

	_ = serverMc.WritePacket(&packet.Chat{Message: p.Message, Type: packet.ChatMessage})
}

// handleBackendJoinGame performs the client-side bookkeeping needed when a
// player's backend connection finishes joining destination, whether that is
// the player's first server or a mid-session switch.
func (c *clientPlaySessionHandler) handleBackendJoinGame(destination *serverConnection) (handled bool) {
	if _, ok := destination.ensureConnected(); !ok {
		return false
	}

	if !c.spawned.CAS(false, true) {
		// Switching servers: the mirrored tab list from the previous server
		// no longer applies to the new one, so every entry is cleared
		// before the new server starts sending upserts.
		c.player.TabList().ClearAll()
	}

	destination.completeJoin()
	return true
}
