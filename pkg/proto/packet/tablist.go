package packet

import (
	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
)

// UpsertAction is one bit of the action set carried by UpsertPlayerInfo.
// Senders include only the actions whose corresponding field is meaningful
// for a given entry.
type UpsertAction uint8

const (
	AddPlayer UpsertAction = 1 << iota
	InitializeChat
	UpdateGameMode
	UpdateListed
	UpdateLatency
	UpdateDisplayName
	UpdateListOrder
)

// Has reports whether set contains action.
func (set UpsertAction) Has(action UpsertAction) bool { return set&action != 0 }

// IdentifiedKey is the chain-of-trust token backing a signed chat session.
type IdentifiedKey struct {
	PublicKey []byte
	Signature []byte
	Expiry    int64 // unix millis
}

// ChatSession pairs a session id with its signing key.
type ChatSession struct {
	SessionId     uuid.UUID
	IdentifiedKey IdentifiedKey
}

// UpsertEntry is one delta within an UpsertPlayerInfo packet. Only the
// fields whose corresponding bit is set in the enclosing packet's ActionSet
// are meaningful for a given entry.
type UpsertEntry struct {
	ProfileId   uuid.UUID
	Profile     *gameprofile.GameProfile
	ChatSession *ChatSession
	GameMode    *int32
	Listed      *bool
	Latency     *int32
	DisplayName component.Component
	ListOrder   *int32
}

// UpsertPlayerInfo adds players to, or updates rows of, the recipient's tab
// list.
type UpsertPlayerInfo struct {
	ActionSet UpsertAction
	Entries   []UpsertEntry
}

// RemovePlayerInfo removes rows from the recipient's tab list.
type RemovePlayerInfo struct {
	ProfilesToRemove []uuid.UUID
}

// PlayerListHeaderAndFooter sets or clears the static text shown above and
// below the tab list.
type PlayerListHeaderAndFooter struct {
	Header component.Component
	Footer component.Component
}
