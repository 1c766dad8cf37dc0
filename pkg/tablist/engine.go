// Package tablist implements the server-authoritative mirror of a single
// player's tab list UI. Engine owns the entries of one connected player;
// Entry is a value object with protocol-aware mutators that forward to the
// owning Engine to emit minimal-delta packets.
package tablist

import (
	"errors"
	"reflect"
	"sync"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidEntry is returned by AddEntry when the entry's profile or
// profile id is nil.
var ErrInvalidEntry = errors.New("tablist: entry has nil profile or profile id")

// PacketSink is the connection-layer peer the engine emits packets to. It
// is the entire surface the tab list needs from the real packet codec,
// framing and transport, which are out of scope for this subsystem.
type PacketSink interface {
	// WritePacket sends p immediately.
	WritePacket(p proto.Packet) error
	// DelayedWrite queues p for a non-blocking deferred send, used by
	// ClearAll.
	DelayedWrite(p proto.Packet) error
}

const numShards = 32

type shard struct {
	mu sync.Mutex
	m  map[uuid.UUID]*Entry
}

// Engine is the per-player tab list mirror described. The
// zero value is not usable; construct with New.
type Engine struct {
	sink     PacketSink
	protocol proto.Protocol
	debug    bool

	shards [numShards]*shard
}

// New creates an Engine that emits packets for the given protocol version
// to sink.
func New(sink PacketSink, protocolVersion proto.Protocol) *Engine {
	e := &Engine{sink: sink, protocol: protocolVersion}
	for i := range e.shards {
		e.shards[i] = &shard{m: make(map[uuid.UUID]*Entry)}
	}
	return e
}

// SetDebug toggles verbose debug logging of dropped partial updates.
func (e *Engine) SetDebug(debug bool) { e.debug = debug }

func (e *Engine) shardFor(id uuid.UUID) *shard {
	var h uint64
	for _, b := range id {
		h = h*31 + uint64(b)
	}
	return e.shards[h%numShards]
}

// BuildEntry returns a new Entry bound to this engine. It is not inserted
// into the mirror until passed to AddEntry.
func (e *Engine) BuildEntry(profile *gameprofile.GameProfile, displayName component.Component,
	latency int32, gameMode int32, chatSession *packet.ChatSession, listed bool, listOrder int32) *Entry {
	return newEntry(e, profile, displayName, latency, gameMode, chatSession, listed, listOrder)
}

// AddEntry inserts or merges entry into the mirror, emitting one Upsert
// packet carrying the minimal action set required. If entry was built by a
// different Engine, its observable fields are copied into a
// freshly-constructed local entry first.
func (e *Engine) AddEntry(entry *Entry) error {
	if entry.Profile() == nil || entry.Profile().Id == uuid.Nil {
		return ErrInvalidEntry
	}
	fresh := entry
	if entry.engine != e {
		snap := entry.snapshot()
		fresh = newEntry(e, snap.profile, snap.displayName, snap.latency, snap.gameMode, snap.chatSession, snap.listed, snap.listOrder)
	}
	id := fresh.profileID
	sh := e.shardFor(id)

	sh.mu.Lock()
	prev, existed := sh.m[id]
	newFields := fresh.snapshot()

	var actionSet packet.UpsertAction
	if !existed {
		actionSet = packet.AddPlayer | packet.UpdateLatency | packet.UpdateListed
		if newFields.displayName != nil {
			actionSet |= packet.UpdateDisplayName
		}
		if newFields.chatSession != nil {
			actionSet |= packet.InitializeChat
		}
		if newFields.gameMode != GameModeNotSet && newFields.gameMode != GameModeLegacyUnset {
			actionSet |= packet.UpdateGameMode
		}
		if newFields.listOrder != 0 && e.protocol.SupportsListOrder() {
			actionSet |= packet.UpdateListOrder
		}
	} else {
		prevFields := prev.snapshot()
		if prevFields.equal(newFields) {
			actionSet = 0
		} else {
			if prevFields.gameMode != newFields.gameMode {
				actionSet |= packet.UpdateGameMode
			}
			if prevFields.latency != newFields.latency {
				actionSet |= packet.UpdateLatency
			}
			if !reflect.DeepEqual(prevFields.displayName, newFields.displayName) {
				actionSet |= packet.UpdateDisplayName
			}
			if newFields.chatSession != nil && !reflect.DeepEqual(prevFields.chatSession, newFields.chatSession) {
				actionSet |= packet.InitializeChat
			}
			if prevFields.listed != newFields.listed {
				actionSet |= packet.UpdateListed
			}
			if prevFields.listOrder != newFields.listOrder && e.protocol.SupportsListOrder() {
				actionSet |= packet.UpdateListOrder
			}
		}
	}

	sh.m[id] = fresh
	sh.mu.Unlock()

	if actionSet == 0 {
		return nil
	}
	return e.sink.WritePacket(&packet.UpsertPlayerInfo{
		ActionSet: actionSet,
		Entries:   []packet.UpsertEntry{buildUpsertEntry(fresh, actionSet)},
	})
}

func buildUpsertEntry(e *Entry, actionSet packet.UpsertAction) packet.UpsertEntry {
	f := e.snapshot()
	out := packet.UpsertEntry{ProfileId: e.profileID}
	if actionSet.Has(packet.AddPlayer) {
		out.Profile = f.profile
	}
	if actionSet.Has(packet.UpdateLatency) {
		v := f.latency
		out.Latency = &v
	}
	if actionSet.Has(packet.UpdateListed) {
		v := f.listed
		out.Listed = &v
	}
	if actionSet.Has(packet.UpdateDisplayName) {
		out.DisplayName = f.displayName
	}
	if actionSet.Has(packet.InitializeChat) {
		out.ChatSession = f.chatSession
	}
	if actionSet.Has(packet.UpdateGameMode) {
		v := f.gameMode
		out.GameMode = &v
	}
	if actionSet.Has(packet.UpdateListOrder) {
		v := f.listOrder
		out.ListOrder = &v
	}
	return out
}

// publishSingle atomically mutates entry under its shard lock, then emits a
// single-action Upsert delta for it.
func (e *Engine) publishSingle(entry *Entry, action packet.UpsertAction, mutate func()) error {
	sh := e.shardFor(entry.profileID)
	sh.mu.Lock()
	mutate()
	delta := buildUpsertEntry(entry, action)
	sh.mu.Unlock()

	return e.sink.WritePacket(&packet.UpsertPlayerInfo{
		ActionSet: action,
		Entries:   []packet.UpsertEntry{delta},
	})
}

// mutateOnly atomically mutates entry under its shard lock without emitting
// any packet, used when a field is gated off the wire for the current
// protocol version.
func (e *Engine) mutateOnly(entry *Entry, mutate func()) error {
	sh := e.shardFor(entry.profileID)
	sh.mu.Lock()
	mutate()
	sh.mu.Unlock()
	return nil
}

// RemoveEntry removes id from the mirror and emits a Remove packet listing
// it, regardless of prior presence. It
// returns the removed entry, or nil if id was not present.
func (e *Engine) RemoveEntry(id uuid.UUID) *Entry {
	sh := e.shardFor(id)
	sh.mu.Lock()
	prev := sh.m[id]
	delete(sh.m, id)
	sh.mu.Unlock()

	_ = e.sink.WritePacket(&packet.RemovePlayerInfo{ProfilesToRemove: []uuid.UUID{id}})
	return prev
}

// ContainsEntry reports whether id is currently in the mirror.
func (e *Engine) ContainsEntry(id uuid.UUID) bool {
	sh := e.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.m[id]
	return ok
}

// GetEntry returns the entry for id, if present.
func (e *Engine) GetEntry(id uuid.UUID) (*Entry, bool) {
	sh := e.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.m[id]
	return entry, ok
}

// GetEntries returns a snapshot of all current entries, in no particular
// order.
func (e *Engine) GetEntries() []*Entry {
	var out []*Entry
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, entry := range sh.m {
			out = append(out, entry)
		}
		sh.mu.Unlock()
	}
	return out
}

// ClearAll empties the mirror and emits one Remove packet listing every
// prior key exactly once, as a non-blocking deferred send.
func (e *Engine) ClearAll() {
	var ids []uuid.UUID
	for _, sh := range e.shards {
		sh.mu.Lock()
		for id := range sh.m {
			ids = append(ids, id)
		}
		sh.m = make(map[uuid.UUID]*Entry)
		sh.mu.Unlock()
	}
	if len(ids) == 0 {
		return
	}
	_ = e.sink.DelayedWrite(&packet.RemovePlayerInfo{ProfilesToRemove: ids})
}

// ClearAllSilent empties the mirror without emitting anything.
func (e *Engine) ClearAllSilent() {
	for _, sh := range e.shards {
		sh.mu.Lock()
		sh.m = make(map[uuid.UUID]*Entry)
		sh.mu.Unlock()
	}
}

// SetHeaderAndFooter sends a header/footer packet. Both components are
// required.
func (e *Engine) SetHeaderAndFooter(header, footer component.Component) error {
	return e.sink.WritePacket(&packet.PlayerListHeaderAndFooter{Header: header, Footer: footer})
}

// ClearHeaderAndFooter sends empty header/footer components.
func (e *Engine) ClearHeaderAndFooter() error {
	return e.SetHeaderAndFooter(&component.Text{}, &component.Text{})
}

// ProcessUpdate applies an inbound Upsert packet's deltas to the mirror
// without re-emitting anything.
func (e *Engine) ProcessUpdate(p *packet.UpsertPlayerInfo) {
	for _, delta := range p.Entries {
		e.applyUpdate(p.ActionSet, delta)
	}
}

func (e *Engine) applyUpdate(actionSet packet.UpsertAction, delta packet.UpsertEntry) {
	sh := e.shardFor(delta.ProfileId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, existed := sh.m[delta.ProfileId]
	if !existed {
		if !actionSet.Has(packet.AddPlayer) {
			if e.debug {
				zap.L().Debug("tablist: dropping partial update before ADD_PLAYER",
					zap.Stringer("profileId", delta.ProfileId))
			}
			return
		}
		gameMode := GameModeNotSet
		if delta.GameMode != nil {
			gameMode = *delta.GameMode
		}
		entry = &Entry{
			engine:    e,
			profileID: delta.ProfileId,
			profile:   delta.Profile,
			gameMode:  gameMode,
		}
		sh.m[delta.ProfileId] = entry
	}

	if actionSet.Has(packet.UpdateGameMode) && delta.GameMode != nil {
		entry.setGameModeLocked(*delta.GameMode)
	}
	if actionSet.Has(packet.UpdateLatency) && delta.Latency != nil {
		entry.setLatencyLocked(*delta.Latency)
	}
	if actionSet.Has(packet.UpdateDisplayName) {
		entry.setDisplayNameLocked(delta.DisplayName)
	}
	if actionSet.Has(packet.InitializeChat) && delta.ChatSession != nil {
		entry.setChatSessionLocked(delta.ChatSession)
	}
	if actionSet.Has(packet.UpdateListed) && delta.Listed != nil {
		entry.setListedLocked(*delta.Listed)
	}
	if actionSet.Has(packet.UpdateListOrder) && delta.ListOrder != nil {
		entry.setListOrderLocked(*delta.ListOrder)
	}
}

// ProcessRemove drops every id in p from the mirror.
func (e *Engine) ProcessRemove(p *packet.RemovePlayerInfo) {
	for _, id := range p.ProfilesToRemove {
		sh := e.shardFor(id)
		sh.mu.Lock()
		delete(sh.m, id)
		sh.mu.Unlock()
	}
}
