package proxy

import (
	"sync"

	"go.uber.org/atomic"
)

// ServerConnection is a player's view of a single backend connection
// attempt or established session.
type ServerConnection interface {
	Server() RegisteredServer
}

// serverConnection tracks one player's connection to one backend server.
// Dialing the backend, retrying on failure and the login handshake with it
// are out-of-scope peers; this type only carries what the tab list and
// keep-alive bookkeeping need once a connection exists.
type serverConnection struct {
	server RegisteredServer
	player *connectedPlayer

	lastPingId   atomic.Int64
	lastPingSent atomic.Int64

	mu   sync.RWMutex
	mc   *minecraftConn
	done bool
}

var _ ServerConnection = (*serverConnection)(nil)

func newServerConnection(server RegisteredServer, player *connectedPlayer) *serverConnection {
	return &serverConnection{server: server, player: player}
}

func (s *serverConnection) Server() RegisteredServer { return s.server }

func (s *serverConnection) conn() *minecraftConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mc
}

func (s *serverConnection) setConn(mc *minecraftConn) {
	s.mu.Lock()
	s.mc = mc
	s.mu.Unlock()
}

// ensureConnected reports whether the backend connection has been
// established.
func (s *serverConnection) ensureConnected() (*minecraftConn, bool) {
	mc := s.conn()
	return mc, mc != nil
}

// completeJoin marks the switch to this server as finished.
func (s *serverConnection) completeJoin() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func (s *serverConnection) disconnect() {
	if mc := s.conn(); mc != nil {
		_ = mc.close()
	}
}
