package packet

import "go.minekube.com/common/minecraft/component"

// Chat, KeepAlive and Disconnect are peers of the tab list packets: the
// session handler moves them between client and backend, but their wire
// shape and the login/encryption machinery that produces them are
// out-of-scope. These are the minimal fields the proxy layer
// actually reads or writes.

// ChatType distinguishes a chat message from a `/`-command.
type ChatType uint8

const (
	ChatMessage ChatType = iota
	ChatCommand
)

// Chat is a client-to-server chat or command submission.
type Chat struct {
	Message string
	Type    ChatType
}

// KeepAlive is the periodic liveness ping exchanged with a connection to
// detect a dead socket before the OS does.
type KeepAlive struct {
	RandomId int64
}

// Disconnect carries the reason shown to a player when their connection is
// closed by the proxy or a backend.
type Disconnect struct {
	Reason component.Component
}
