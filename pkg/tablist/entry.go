package tablist

import (
	"reflect"
	"sync"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/gate/pkg/proto/packet"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
)

// Game mode values a TabListEntry may carry. GameModeNotSet and
// GameModeLegacyUnset are both sentinels meaning "unspecified" -- only
// GameModeNotSet is documented by the protocol, GameModeLegacyUnset (256) is
// a historical value some clients still send. Both are treated identically:
// neither triggers UPDATE_GAME_MODE on first insert.
const (
	GameModeNotSet      int32 = -1
	GameModeSurvival    int32 = 0
	GameModeCreative    int32 = 1
	GameModeAdventure   int32 = 2
	GameModeSpectator   int32 = 3
	GameModeLegacyUnset int32 = 256
)

// Entry is one row of one player's tab list. It is created by an
// Engine (via BuildEntry, AddEntry or an inbound ADD_PLAYER) and is only
// ever mutated through its own setters or the owning Engine -- direct field
// access from outside the package is not possible.
type Entry struct {
	mu sync.RWMutex

	profileID   uuid.UUID
	profile     *gameprofile.GameProfile // immutable once assigned
	displayName component.Component
	latency     int32
	gameMode    int32
	listed      bool
	listOrder   int32
	chatSession *packet.ChatSession

	engine *Engine // back-reference, not an ownership edge
}

// newEntry constructs a fresh Entry bound to engine, copying the observable
// fields of a possibly-foreign entry passed into AddEntry.
func newEntry(engine *Engine, profile *gameprofile.GameProfile, displayName component.Component,
	latency int32, gameMode int32, chatSession *packet.ChatSession, listed bool, listOrder int32) *Entry {
	return &Entry{
		engine:      engine,
		profileID:   profile.Id,
		profile:     profile,
		displayName: displayName,
		latency:     latency,
		gameMode:    gameMode,
		chatSession: chatSession,
		listed:      listed,
		listOrder:   listOrder,
	}
}

// snapshot copies the current field values of e.
func (e *Entry) snapshot() entryFields {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return entryFields{
		profile:     e.profile,
		displayName: e.displayName,
		latency:     e.latency,
		gameMode:    e.gameMode,
		listed:      e.listed,
		listOrder:   e.listOrder,
		chatSession: e.chatSession,
	}
}

// entryFields is the value-comparable state of an Entry, used by the merge
// algorithm in Engine.AddEntry to compute a field-by-field diff.
type entryFields struct {
	profile     *gameprofile.GameProfile
	displayName component.Component
	latency     int32
	gameMode    int32
	listed      bool
	listOrder   int32
	chatSession *packet.ChatSession
}

func (a entryFields) equal(b entryFields) bool {
	return reflect.DeepEqual(a.profile, b.profile) &&
		reflect.DeepEqual(a.displayName, b.displayName) &&
		a.latency == b.latency &&
		a.gameMode == b.gameMode &&
		a.listed == b.listed &&
		a.listOrder == b.listOrder &&
		reflect.DeepEqual(a.chatSession, b.chatSession)
}

// ProfileID returns the profile id this entry is keyed by.
func (e *Entry) ProfileID() uuid.UUID { return e.profileID }

// Profile returns the (immutable) game profile of this entry.
func (e *Entry) Profile() *gameprofile.GameProfile { return e.profile }

// DisplayName returns the entry's display name override, or nil if the
// client should render the profile name.
func (e *Entry) DisplayName() component.Component {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.displayName
}

// Latency returns the displayed latency in milliseconds.
func (e *Entry) Latency() int32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latency
}

// GameMode returns the entry's game mode, or GameModeNotSet/GameModeLegacyUnset
// if unspecified.
func (e *Entry) GameMode() int32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gameMode
}

// Listed reports whether this row is currently visible.
func (e *Entry) Listed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listed
}

// ListOrder returns the entry's sort key. Only meaningful on protocol >=
// 1.21.2.
func (e *Entry) ListOrder() int32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listOrder
}

// ChatSession returns the entry's signed-chat session, or nil.
func (e *Entry) ChatSession() *packet.ChatSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chatSession
}

// TabList returns the Engine that owns this entry.
func (e *Entry) TabList() *Engine { return e.engine }

func (e *Entry) setDisplayNameLocked(v component.Component)   { e.mu.Lock(); e.displayName = v; e.mu.Unlock() }
func (e *Entry) setLatencyLocked(v int32)                     { e.mu.Lock(); e.latency = v; e.mu.Unlock() }
func (e *Entry) setGameModeLocked(v int32)                    { e.mu.Lock(); e.gameMode = v; e.mu.Unlock() }
func (e *Entry) setListedLocked(v bool)                       { e.mu.Lock(); e.listed = v; e.mu.Unlock() }
func (e *Entry) setListOrderLocked(v int32)                   { e.mu.Lock(); e.listOrder = v; e.mu.Unlock() }
func (e *Entry) setChatSessionLocked(v *packet.ChatSession)   { e.mu.Lock(); e.chatSession = v; e.mu.Unlock() }

// SetDisplayName updates the display name and publishes an UPDATE_DISPLAY_NAME
// delta.
func (e *Entry) SetDisplayName(v component.Component) error {
	return e.engine.publishSingle(e, packet.UpdateDisplayName, func() { e.setDisplayNameLocked(v) })
}

// SetLatency updates the latency and publishes an UPDATE_LATENCY delta.
func (e *Entry) SetLatency(v int32) error {
	return e.engine.publishSingle(e, packet.UpdateLatency, func() { e.setLatencyLocked(v) })
}

// SetGameMode updates the game mode and publishes an UPDATE_GAME_MODE delta.
func (e *Entry) SetGameMode(v int32) error {
	return e.engine.publishSingle(e, packet.UpdateGameMode, func() { e.setGameModeLocked(v) })
}

// SetListed updates the listed flag and publishes an UPDATE_LISTED delta.
func (e *Entry) SetListed(v bool) error {
	return e.engine.publishSingle(e, packet.UpdateListed, func() { e.setListedLocked(v) })
}

// SetListOrder updates the sort key. The field is always stored, but the
// update is only placed on the wire when the engine's protocol version
// supports UPDATE_LIST_ORDER.
func (e *Entry) SetListOrder(v int32) error {
	mutate := func() { e.setListOrderLocked(v) }
	if !e.engine.protocol.SupportsListOrder() {
		return e.engine.mutateOnly(e, mutate)
	}
	return e.engine.publishSingle(e, packet.UpdateListOrder, mutate)
}
