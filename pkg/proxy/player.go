package proxy

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/common/minecraft/component/codec/legacy"
	"go.minekube.com/gate/pkg/proto/packet"
	"go.minekube.com/gate/pkg/tablist"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Player is a connected Minecraft player.
type Player interface {
	Inbound

	Username() string                // The username of the player.
	Id() uuid.UUID                   // The Minecraft UUID of the player.
	CurrentServer() ServerConnection // May be nil if not yet connected to a backend.
	Ping() time.Duration             // The player's ping, or -1 if currently unknown.
	OnlineMode() bool                // Whether the player was authenticated with Mojang's session servers.
	GameProfile() *gameprofile.GameProfile

	// TabList returns the player's tab list mirror. It is created once, on
	// first connect, and outlives every backend switch.
	TabList() *tablist.Engine

	// Disconnect closes the connection with reason shown to the player.
	// Further calls to this player become undefined.
	Disconnect(reason component.Component)
	// SpoofChatInput sends input onto the player's current server as if the
	// player had typed it into their chat box.
	SpoofChatInput(input string) error
}

type connectedPlayer struct {
	*minecraftConn
	virtualHost net.Addr
	onlineMode  bool
	profile     *gameprofile.GameProfile
	ping        atomic.Duration
	tabList     *tablist.Engine

	disconnectDueToDuplicateConnection atomic.Bool

	mu               sync.RWMutex
	connectedServer_ *serverConnection
	connInFlight     *serverConnection

	serversToTry []string // names of servers to try if disconnected from the previous one
	tryIndex     int
}

var _ Player = (*connectedPlayer)(nil)

func newConnectedPlayer(conn *minecraftConn, profile *gameprofile.GameProfile, virtualHost net.Addr, onlineMode bool) *connectedPlayer {
	ping := atomic.Duration{}
	ping.Store(-1)
	p := &connectedPlayer{
		minecraftConn: conn,
		profile:       profile,
		virtualHost:   virtualHost,
		onlineMode:    onlineMode,
		ping:          ping,
	}
	p.tabList = tablist.New(p, conn.Protocol())
	return p
}

func (p *connectedPlayer) connectionInFlight() *serverConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connInFlight
}

func (p *connectedPlayer) Ping() time.Duration { return p.ping.Load() }

func (p *connectedPlayer) OnlineMode() bool { return p.onlineMode }

func (p *connectedPlayer) GameProfile() *gameprofile.GameProfile { return p.profile }

func (p *connectedPlayer) TabList() *tablist.Engine { return p.tabList }

var (
	ErrNoBackendConnection = errors.New("player has no backend server connection yet")
	ErrTooLongChatMessage  = errors.New("server bound chat message can not exceed 256 characters")
)

const maxServerBoundMessageLength = 256

func (p *connectedPlayer) SpoofChatInput(input string) error {
	if len(input) > maxServerBoundMessageLength {
		return ErrTooLongChatMessage
	}
	serverMc, ok := p.ensureBackendConnection()
	if !ok {
		return ErrNoBackendConnection
	}
	return serverMc.WritePacket(&packet.Chat{Message: input, Type: packet.ChatMessage})
}

func (p *connectedPlayer) ensureBackendConnection() (*minecraftConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.connectedServer_ == nil {
		return nil, false
	}
	serverMc := p.connectedServer_.conn()
	if serverMc == nil {
		return nil, false
	}
	return serverMc, true
}

func (p *connectedPlayer) VirtualHost() net.Addr { return p.virtualHost }

func (p *connectedPlayer) Active() bool { return !p.minecraftConn.Closed() }

func (p *connectedPlayer) SendMessage(msg component.Component) error {
	var b strings.Builder
	if err := (&legacy.Legacy{}).Marshal(&b, msg); err != nil {
		return err
	}
	return p.WritePacket(&packet.Chat{Message: b.String(), Type: packet.ChatMessage})
}

// nextServerToTry finds another server to attempt after an unexpected
// disconnect from current. current may be nil. Returns nil if none remain.
func (p *connectedPlayer) nextServerToTry(current RegisteredServer) RegisteredServer {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.proxy.Config()
	if len(p.serversToTry) == 0 {
		p.serversToTry = cfg.ForcedHosts[p.virtualHost.String()]
	}
	if len(p.serversToTry) == 0 {
		p.serversToTry = cfg.AttemptConnectionOrder
	}

	sameName := func(rs RegisteredServer, name string) bool {
		return rs != nil && rs.ServerInfo().Name == name
	}

	for i := p.tryIndex; i < len(p.serversToTry); i++ {
		toTry := p.serversToTry[i]
		if (p.connectedServer_ != nil && sameName(p.connectedServer_.Server(), toTry)) ||
			(p.connInFlight != nil && sameName(p.connInFlight.Server(), toTry)) ||
			(current != nil && sameName(current, toTry)) {
			continue
		}
		p.tryIndex = i
		if s := p.proxy.Server(toTry); s != nil {
			return s
		}
	}
	return nil
}

// teardown runs once the player's client connection has closed: it
// disconnects any backend connection and unregisters the player.
func (p *connectedPlayer) teardown() {
	p.mu.RLock()
	connInFlight := p.connInFlight
	connectedServer := p.connectedServer_
	p.mu.RUnlock()

	if connInFlight != nil {
		connInFlight.disconnect()
	}
	if connectedServer != nil {
		connectedServer.disconnect()
	}

	p.proxy.unregisterPlayer(p)
	if !p.knownDisconnect.Load() {
		zap.S().Infof("%s has disconnected", p)
	}
}

// CurrentServer returns the player's current backend connection, or nil.
func (p *connectedPlayer) CurrentServer() ServerConnection {
	sc := p.connectedServer()
	if sc == nil {
		return nil
	}
	return sc
}

func (p *connectedPlayer) connectedServer() *serverConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectedServer_
}

func (p *connectedPlayer) setConnectedServer(conn *serverConnection) {
	p.mu.Lock()
	p.connectedServer_ = conn
	p.mu.Unlock()
}

func (p *connectedPlayer) Username() string { return p.profile.Name }

func (p *connectedPlayer) Id() uuid.UUID { return p.profile.Id }

func (p *connectedPlayer) Disconnect(reason component.Component) {
	if !p.Active() {
		return
	}
	var r interface{} = reason
	var b strings.Builder
	if (&legacy.Legacy{}).Marshal(&b, reason) == nil {
		r = b.String()
	}
	if p.closeWith(&packet.Disconnect{Reason: reason}) == nil {
		zap.S().Infof("%s has disconnected: %v", p, r)
	}
}

func (p *connectedPlayer) String() string { return p.profile.Name }

func randomUint64() uint64 {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return binary.LittleEndian.Uint64(buf)
}
