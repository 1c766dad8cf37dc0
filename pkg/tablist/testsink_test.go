package tablist

import (
	"sync"

	"go.minekube.com/gate/pkg/proto"
)

// fakeSink records every packet handed to it, immediate and delayed alike,
// in arrival order.
type fakeSink struct {
	mu      sync.Mutex
	written []proto.Packet
}

func (s *fakeSink) WritePacket(p proto.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, p)
	return nil
}

func (s *fakeSink) DelayedWrite(p proto.Packet) error {
	return s.WritePacket(p)
}

func (s *fakeSink) packets() []proto.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Packet, len(s.written))
	copy(out, s.written)
	return out
}
