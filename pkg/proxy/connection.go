package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.minekube.com/gate/pkg/config"
	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"

	"github.com/gammazero/deque"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// sessionHandler handles packets received on a connection. A connection
// moves through handshake, login and play phases; each phase installs its
// own sessionHandler. Only the play-phase handler (session_client_play.go)
// is built out here -- the login handshake itself is an out-of-scope peer,
// referenced only through this interface.
type sessionHandler interface {
	handlePacket(ctx context.Context, p proto.Packet)
	disconnected()

	activated()
	deactivated()
}

// minecraftConn is a Minecraft connection from client to proxy, or from
// proxy to a backend server. The wire codec -- variable-length framing,
// compression and encryption -- is the out-of-scope packetCodec stand-in
// (codec.go); this type only owns the read/write loop and session handler
// dispatch around it.
type minecraftConn struct {
	proxy *Proxy
	c     net.Conn

	readBuf *bufio.Reader
	codec   packetCodec

	writeMu  sync.Mutex
	writeBuf *bufio.Writer

	cancelFunc      context.CancelFunc
	closeOnce       sync.Once
	closed          atomic.Bool
	knownDisconnect atomic.Bool // silences the disconnect log line

	protocol proto.Protocol

	mu             sync.RWMutex
	sessionHandler sessionHandler

	outboundMu   sync.Mutex
	outboundCond *sync.Cond
	outbound     deque.Deque
}

// newMinecraftConn returns a new Minecraft connection wrapping base. It
// starts a dedicated writer goroutine draining the connection's delayed
// write queue (see DelayedWrite), so queued packets are sent in the order
// they were queued without spawning one goroutine per packet.
func newMinecraftConn(base net.Conn, proxy *Proxy) *minecraftConn {
	c := &minecraftConn{
		proxy:    proxy,
		c:        base,
		readBuf:  bufio.NewReader(base),
		writeBuf: bufio.NewWriter(base),
		protocol: proto.Minecraft_1_7_2,
	}
	c.outboundCond = sync.NewCond(&c.outboundMu)
	go c.writeLoop()
	return c
}

// writeLoop drains the outbound queue until the connection is closed.
func (c *minecraftConn) writeLoop() {
	for {
		c.outboundMu.Lock()
		for c.outbound.Len() == 0 && !c.closed.Load() {
			c.outboundCond.Wait()
		}
		if c.outbound.Len() == 0 {
			c.outboundMu.Unlock()
			return
		}
		p := c.outbound.PopFront().(proto.Packet)
		c.outboundMu.Unlock()
		_ = c.WritePacket(p)
	}
}

// readLoop is the connection's main goroutine: it reads packets and hands
// them to the current sessionHandler until ctx is canceled or the
// connection dies. close is called on return.
func (c *minecraftConn) readLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() { _ = c.closeKnown(false) }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !c.readOne(ctx) {
				return
			}
		}
	}
}

func (c *minecraftConn) readOne(ctx context.Context) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("recovered from panic in read loop: %v", r)
			again = false
		}
	}()

	deadline := time.Now().Add(time.Duration(c.config().Advanced.ReadTimeout) * time.Millisecond)
	_ = c.c.SetReadDeadline(deadline)

	p, err := c.codec.decode(c.readBuf)
	if err != nil {
		if handleReadErr(err) {
			time.Sleep(5 * time.Millisecond)
			return true
		}
		zap.L().Debug("closing connection after read error", zap.Error(err))
		return false
	}

	c.SessionHandler().handlePacket(ctx, p)
	return true
}

// handleReadErr reports whether err is a transient condition worth
// retrying rather than a reason to close the connection.
func handleReadErr(err error) (recoverable bool) {
	if errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Temporary() {
			return true
		}
		if netErr.Timeout() {
			return false
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrShortBuffer) ||
		strings.Contains(err.Error(), "use of closed network connection") {
		return false
	}
	return false
}

// flush writes buffered data to the connection.
func (c *minecraftConn) flush() (err error) {
	defer func() { c.closeOnErr(err) }()
	deadline := time.Now().Add(time.Duration(c.config().Advanced.ConnectionTimeout) * time.Millisecond)
	if err = c.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeBuf.Flush()
}

func (c *minecraftConn) closeOnErr(err error) {
	if err == nil {
		return
	}
	_ = c.close()
	if errors.Is(err, ErrClosedConn) {
		return
	}
	zap.L().Debug("error writing packet, closing connection", zap.Error(err))
}

// WritePacket encodes and writes p, flushing immediately. The connection is
// closed on any encountered error.
func (c *minecraftConn) WritePacket(p proto.Packet) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { c.closeOnErr(err) }()
	if err = c.BufferPacket(p); err != nil {
		return err
	}
	return c.flush()
}

// DelayedWrite queues p on the connection's outbound queue for the writer
// goroutine to send, without blocking the caller (tablist.PacketSink, used
// by Engine.ClearAll so a full-mirror clear never blocks on I/O). Packets
// queued this way are sent in FIFO order.
func (c *minecraftConn) DelayedWrite(p proto.Packet) error {
	if c.Closed() {
		return ErrClosedConn
	}
	c.outboundMu.Lock()
	c.outbound.PushBack(p)
	c.outboundCond.Signal()
	c.outboundMu.Unlock()
	return nil
}

// BufferPacket encodes p into the connection's write buffer without
// flushing.
func (c *minecraftConn) BufferPacket(p proto.Packet) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { c.closeOnErr(err) }()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.codec.encode(c.writeBuf, p)
}

func (c *minecraftConn) config() *config.Config { return c.proxy.Config() }

// ErrClosedConn indicates the connection is already closed.
var ErrClosedConn = errors.New("connection is closed")

// close closes the connection if not already closed, and tears down the
// current sessionHandler. Safe to call multiple times.
func (c *minecraftConn) close() error { return c.closeKnown(true) }

func (c *minecraftConn) closeKnown(markKnown bool) (err error) {
	alreadyClosed := true
	c.closeOnce.Do(func() {
		alreadyClosed = false
		if markKnown {
			c.knownDisconnect.Store(true)
		}
		if c.cancelFunc != nil {
			c.cancelFunc()
		}
		c.closed.Store(true)
		err = c.c.Close()

		c.outboundMu.Lock()
		c.outboundCond.Broadcast()
		c.outboundMu.Unlock()

		if sh := c.SessionHandler(); sh != nil {
			sh.disconnected()
		}
	})
	if alreadyClosed {
		err = ErrClosedConn
	}
	return err
}

// closeWith writes p then closes the connection.
func (c *minecraftConn) closeWith(p proto.Packet) error {
	if c.Closed() {
		return ErrClosedConn
	}
	c.knownDisconnect.Store(true)
	_ = c.WritePacket(p)
	return c.close()
}

// Closed reports whether the connection has been closed.
func (c *minecraftConn) Closed() bool { return c.closed.Load() }

func (c *minecraftConn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

func (c *minecraftConn) Protocol() proto.Protocol { return c.protocol }

func (c *minecraftConn) SessionHandler() sessionHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionHandler
}

// setSessionHandler installs handler, deactivating the previous one first.
func (c *minecraftConn) setSessionHandler(handler sessionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionHandler != nil {
		c.sessionHandler.deactivated()
	}
	c.sessionHandler = handler
	handler.activated()
}

// SendKeepAlive sends a keep-alive ping to detect a dead socket.
func (c *minecraftConn) SendKeepAlive(randomID int64) error {
	return c.WritePacket(&packet.KeepAlive{RandomId: randomID})
}

// Inbound is an incoming connection to the proxy.
type Inbound interface {
	Protocol() proto.Protocol
	VirtualHost() net.Addr
	RemoteAddr() net.Addr
	Active() bool
	Closed() bool
}
