package proxy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"
)

// The real Minecraft wire codec -- variable-length packet framing, zlib
// compression and AES/CFB8 encryption -- is an out-of-scope peer: the tab
// list and config subsystems only depend on the PacketSink interface, never
// on how bytes reach the wire. packetCodec is a minimal stand-in so
// *minecraftConn has something concrete to drive its read/write loop with:
// a 4-byte big-endian length prefix followed by a gob-encoded packet.
type packetCodec struct{}

func init() {
	gob.Register(&packet.UpsertPlayerInfo{})
	gob.Register(&packet.RemovePlayerInfo{})
	gob.Register(&packet.PlayerListHeaderAndFooter{})
	gob.Register(&packet.Chat{})
	gob.Register(&packet.KeepAlive{})
	gob.Register(&packet.Disconnect{})

	// UpsertEntry.DisplayName, PlayerListHeaderAndFooter.{Header,Footer} and
	// Disconnect.Reason all carry component.Component, an interface: gob
	// refuses to encode a value stored behind one unless its concrete type
	// was registered first. component.Text is the only concrete type this
	// proxy constructs (cmd/gate, tablist.Engine).
	gob.Register(&component.Text{})
}

func (packetCodec) encode(w io.Writer, p proto.Packet) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(&p); err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func (packetCodec) decode(r *bufio.Reader) (proto.Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	var p proto.Packet
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return p, nil
}
