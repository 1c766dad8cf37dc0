package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/gate/pkg/config"
	"go.minekube.com/gate/pkg/proto"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// RegisteredServer is a configured backend a player can be sent to. Dialing
// it, retrying on failure and the login handshake with it are out-of-scope
// peers; the proxy only needs enough of a registry to resolve names
// referenced by ForcedHosts and AttemptConnectionOrder.
type RegisteredServer interface {
	ServerInfo() *config.ServerInfo
}

type registeredServer struct {
	info *config.ServerInfo
}

func (r *registeredServer) ServerInfo() *config.ServerInfo { return r.info }

// Proxy is the root of one running instance: the frozen configuration, the
// backend server registry and the set of connected players.
type Proxy struct {
	cfg *config.Config
	log *zap.Logger

	mu      sync.RWMutex
	servers map[string]RegisteredServer
	players map[uuid.UUID]*connectedPlayer

	listener net.Listener
	closed   atomic.Bool
}

// New constructs a Proxy from a frozen configuration snapshot.
func New(cfg config.Config) *Proxy {
	p := &Proxy{
		cfg:     &cfg,
		log:     zap.L(),
		servers: make(map[string]RegisteredServer, len(cfg.Servers)),
		players: make(map[uuid.UUID]*connectedPlayer),
	}
	for name, addr := range cfg.Servers {
		p.servers[name] = &registeredServer{info: &config.ServerInfo{Name: name, Address: addr}}
	}
	return p
}

// Config returns the proxy's frozen configuration.
func (p *Proxy) Config() *config.Config { return p.cfg }

// Server looks up a registered backend by name.
func (p *Proxy) Server(name string) RegisteredServer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.servers[name]
}

func (p *Proxy) registerPlayer(pl *connectedPlayer) {
	p.mu.Lock()
	p.players[pl.Id()] = pl
	p.mu.Unlock()
}

// unregisterPlayer removes pl from the registry, reporting whether it was
// still present.
func (p *Proxy) unregisterPlayer(pl *connectedPlayer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.players[pl.Id()]; !ok {
		return false
	}
	delete(p.players, pl.Id())
	return true
}

// Run starts accepting client connections until Shutdown is called. The
// login handshake that would normally follow an accepted socket -- online
// mode verification, encryption, compression negotiation -- is an
// out-of-scope peer; Run exists so cmd/gate has something concrete to drive
// and so accepted sockets have somewhere to go.
func (p *Proxy) Run() error {
	ln, err := net.Listen("tcp", p.cfg.Bind)
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", p.cfg.Bind, err)
	}
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()
	p.log.Info("listening for connections", zap.String("bind", p.cfg.Bind))

	for {
		c, err := ln.Accept()
		if err != nil {
			if p.closed.Load() {
				return nil
			}
			return err
		}
		go p.handleRawConn(c)
	}
}

func (p *Proxy) handleRawConn(c net.Conn) {
	conn := newMinecraftConn(c, p)
	conn.setSessionHandler(&handshakeSessionHandler{conn: conn})
	conn.readLoop(context.Background())
}

// Shutdown disconnects every connected player with reason and stops
// accepting new connections.
func (p *Proxy) Shutdown(reason component.Component) {
	if !p.closed.CAS(false, true) {
		return
	}
	p.mu.RLock()
	ln := p.listener
	players := make([]*connectedPlayer, 0, len(p.players))
	for _, pl := range p.players {
		players = append(players, pl)
	}
	p.mu.RUnlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, pl := range players {
		pl.Disconnect(reason)
	}
}

// handshakeSessionHandler is the placeholder installed on a freshly
// accepted socket. The real handshake/login state machine (status ping,
// encryption request, profile lookup) is an out-of-scope peer; this handler
// exists only so minecraftConn always has a non-nil sessionHandler to
// dispatch to.
type handshakeSessionHandler struct {
	conn *minecraftConn
}

var _ sessionHandler = (*handshakeSessionHandler)(nil)

func (h *handshakeSessionHandler) handlePacket(context.Context, proto.Packet) {}
func (h *handshakeSessionHandler) disconnected()                             {}
func (h *handshakeSessionHandler) activated()                                {}
func (h *handshakeSessionHandler) deactivated()                              {}
