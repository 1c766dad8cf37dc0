// Package proto holds the protocol version enumeration shared by the tab
// list engine and the connection layer. It intentionally does not implement
// packet framing, encryption or the login handshake: those peers are
// referenced only through the Packet and PacketSink interfaces.
package proto

// Protocol is a Minecraft wire-protocol version number, as sent by the
// client in the handshake packet. Higher numbers are newer.
type Protocol int

// Well-known protocol versions referenced by gating logic elsewhere in the
// proxy. Only the versions actually compared against are named.
const (
	Minecraft_1_7_2   Protocol = 4
	Minecraft_1_8     Protocol = 47
	Minecraft_1_11    Protocol = 315
	Minecraft_1_12_2  Protocol = 340
	Minecraft_1_16    Protocol = 735
	Minecraft_1_21_2  Protocol = 768 // gates TabListEntry.ListOrder
)

// GreaterEqual reports whether p is at least other.
func (p Protocol) GreaterEqual(other Protocol) bool { return p >= other }

// Lower reports whether p predates other.
func (p Protocol) Lower(other Protocol) bool { return p < other }

// SupportsListOrder reports whether UPDATE_LIST_ORDER may be placed on the
// wire for this protocol version.
func (p Protocol) SupportsListOrder() bool { return p.GreaterEqual(Minecraft_1_21_2) }

// Packet is a marker interface implemented by every packet type the
// connection layer can carry. The actual codec (framing, compression,
// encryption) is an out-of-scope peer; this interface is the entire surface
// the core subsystems need from it.
type Packet interface{}
