package tablist

import (
	"sync"
	"testing"

	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(name string) *gameprofile.GameProfile {
	return &gameprofile.GameProfile{Id: uuid.New(), Name: name}
}

func newTestEngine(protocolVersion proto.Protocol) (*Engine, *fakeSink) {
	sink := &fakeSink{}
	return New(sink, protocolVersion), sink
}

func TestAddEntryFirstInsertEmitsFullActionSet(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Steve")
	entry := e.BuildEntry(p, nil, 50, GameModeSurvival, nil, true, 0)

	require.NoError(t, e.AddEntry(entry))

	pkts := sink.packets()
	require.Len(t, pkts, 1)
	upsert, ok := pkts[0].(*packet.UpsertPlayerInfo)
	require.True(t, ok)
	assert.True(t, upsert.ActionSet.Has(packet.AddPlayer))
	assert.True(t, upsert.ActionSet.Has(packet.UpdateLatency))
	assert.True(t, upsert.ActionSet.Has(packet.UpdateListed))
	assert.True(t, upsert.ActionSet.Has(packet.UpdateGameMode))
	assert.False(t, upsert.ActionSet.Has(packet.UpdateDisplayName))
}

// Add then update latency.
func TestAddThenUpdateLatencyEmitsSingleDelta(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Alex")
	first := e.BuildEntry(p, nil, 50, GameModeSurvival, nil, true, 0)
	require.NoError(t, e.AddEntry(first))

	second := e.BuildEntry(p, nil, 80, GameModeSurvival, nil, true, 0)
	require.NoError(t, e.AddEntry(second))

	pkts := sink.packets()
	require.Len(t, pkts, 2)
	upsert := pkts[1].(*packet.UpsertPlayerInfo)
	assert.Equal(t, packet.UpdateLatency, upsert.ActionSet)
	require.Len(t, upsert.Entries, 1)
	require.NotNil(t, upsert.Entries[0].Latency)
	assert.EqualValues(t, 80, *upsert.Entries[0].Latency)
}

// Idempotent add property.
func TestIdempotentAddEmitsNothingOnSecondCall(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Bob")
	entry := e.BuildEntry(p, nil, 10, GameModeCreative, nil, true, 0)
	require.NoError(t, e.AddEntry(entry))
	require.NoError(t, e.AddEntry(entry))
	assert.Len(t, sink.packets(), 1)
}

// Inbound partial update before ADD_PLAYER is dropped.
func TestProcessUpdatePartialBeforeAddIsDropped(t *testing.T) {
	e, _ := newTestEngine(proto.Minecraft_1_21_2)
	id := uuid.New()
	latency := int32(99)
	e.ProcessUpdate(&packet.UpsertPlayerInfo{
		ActionSet: packet.UpdateLatency,
		Entries:   []packet.UpsertEntry{{ProfileId: id, Latency: &latency}},
	})
	_, ok := e.GetEntry(id)
	assert.False(t, ok)
}

// Inbound ADD_PLAYER sets defaults plus gamemode.
func TestProcessUpdateAddSetsDefaults(t *testing.T) {
	e, _ := newTestEngine(proto.Minecraft_1_21_2)
	id := uuid.New()
	gameMode := GameModeCreative
	e.ProcessUpdate(&packet.UpsertPlayerInfo{
		ActionSet: packet.AddPlayer | packet.UpdateGameMode,
		Entries:   []packet.UpsertEntry{{ProfileId: id, GameMode: &gameMode}},
	})
	entry, ok := e.GetEntry(id)
	require.True(t, ok)
	assert.EqualValues(t, GameModeCreative, entry.GameMode())
	assert.EqualValues(t, 0, entry.Latency())
	assert.False(t, entry.Listed())
}

// Protocol gating omits UPDATE_LIST_ORDER on the wire
// but still stores the field.
func TestProtocolGatingOmitsListOrderOnOldProtocol(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_16)
	p := profile("Carl")
	entry := e.BuildEntry(p, nil, 0, GameModeNotSet, nil, true, 5)
	require.NoError(t, e.AddEntry(entry))

	pkts := sink.packets()
	upsert := pkts[0].(*packet.UpsertPlayerInfo)
	assert.False(t, upsert.ActionSet.Has(packet.UpdateListOrder))

	stored, ok := e.GetEntry(entry.ProfileID())
	require.True(t, ok)
	assert.EqualValues(t, 5, stored.ListOrder())
}

func TestSetListOrderGatedOffWireButStored(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_16)
	p := profile("Dee")
	entry := e.BuildEntry(p, nil, 0, GameModeNotSet, nil, true, 0)
	require.NoError(t, e.AddEntry(entry))
	before := len(sink.packets())

	require.NoError(t, entry.SetListOrder(7))
	assert.Len(t, sink.packets(), before, "no packet should be emitted below 1.21.2")
	assert.EqualValues(t, 7, entry.ListOrder())
}

func TestSetListOrderEmitsOnModernProtocol(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Eve")
	entry := e.BuildEntry(p, nil, 0, GameModeNotSet, nil, true, 0)
	require.NoError(t, e.AddEntry(entry))
	before := len(sink.packets())

	require.NoError(t, entry.SetListOrder(3))
	pkts := sink.packets()
	require.Len(t, pkts, before+1)
	upsert := pkts[len(pkts)-1].(*packet.UpsertPlayerInfo)
	assert.Equal(t, packet.UpdateListOrder, upsert.ActionSet)
}

// Round-trip add/remove property.
func TestRoundTripAddRemove(t *testing.T) {
	e, _ := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Finn")
	entry := e.BuildEntry(p, nil, 0, GameModeSurvival, nil, true, 0)
	require.NoError(t, e.AddEntry(entry))

	removed := e.RemoveEntry(entry.ProfileID())
	require.NotNil(t, removed)
	assert.Empty(t, e.GetEntries())
	_, ok := e.GetEntry(entry.ProfileID())
	assert.False(t, ok)
}

func TestRemoveEntryAlwaysEmitsEvenIfAbsent(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	removed := e.RemoveEntry(uuid.New())
	assert.Nil(t, removed)
	assert.Len(t, sink.packets(), 1)
}

// Clear completeness property.
func TestClearAllEmitsFullIdSetAndEmpties(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	var ids []uuid.UUID
	for _, name := range []string{"A", "B", "C"} {
		p := profile(name)
		entry := e.BuildEntry(p, nil, 0, GameModeSurvival, nil, true, 0)
		require.NoError(t, e.AddEntry(entry))
		ids = append(ids, entry.ProfileID())
	}

	e.ClearAll()

	pkts := sink.packets()
	remove := pkts[len(pkts)-1].(*packet.RemovePlayerInfo)
	assert.ElementsMatch(t, ids, remove.ProfilesToRemove)
	assert.Empty(t, e.GetEntries())
}

func TestClearAllOnEmptyEngineEmitsNothing(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	e.ClearAll()
	assert.Empty(t, sink.packets())
}

func TestClearAllSilentEmitsNothing(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Gus")
	entry := e.BuildEntry(p, nil, 0, GameModeSurvival, nil, true, 0)
	require.NoError(t, e.AddEntry(entry))

	e.ClearAllSilent()
	assert.Empty(t, e.GetEntries())
	assert.Len(t, sink.packets(), 1) // only the original add
}

func TestAddEntryInvalidProfile(t *testing.T) {
	e, _ := newTestEngine(proto.Minecraft_1_21_2)
	entry := e.BuildEntry(&gameprofile.GameProfile{}, nil, 0, GameModeNotSet, nil, false, 0)
	err := e.AddEntry(entry)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestAddEntryFromForeignEngineIsCopied(t *testing.T) {
	other, _ := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Foreign")
	foreignEntry := other.BuildEntry(p, nil, 25, GameModeAdventure, nil, true, 0)
	require.NoError(t, other.AddEntry(foreignEntry))

	local, _ := newTestEngine(proto.Minecraft_1_21_2)
	require.NoError(t, local.AddEntry(foreignEntry))

	stored, ok := local.GetEntry(p.Id)
	require.True(t, ok)
	assert.Equal(t, local, stored.TabList())
	assert.EqualValues(t, 25, stored.Latency())
}

// Concurrency: two concurrent AddEntry calls for the same id produce
// exactly one merged packet per commit and a consistent final state.
func TestConcurrentAddEntrySameIdIsSerialized(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Racer")

	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			entry := e.BuildEntry(p, nil, int32(i), GameModeSurvival, nil, true, 0)
			_ = e.AddEntry(entry)
		}()
	}
	wg.Wait()

	entry, ok := e.GetEntry(p.Id)
	require.True(t, ok)
	assert.GreaterOrEqual(t, entry.Latency(), int32(0))
	assert.LessOrEqual(t, len(sink.packets()), n)
	assert.NotEmpty(t, sink.packets())
}

func TestMergeEqualityEmitsNoSecondPacket(t *testing.T) {
	e, sink := newTestEngine(proto.Minecraft_1_21_2)
	p := profile("Hank")
	a := e.BuildEntry(p, nil, 15, GameModeSurvival, nil, false, 0)
	require.NoError(t, e.AddEntry(a))
	b := e.BuildEntry(p, nil, 15, GameModeSurvival, nil, false, 0)
	require.NoError(t, e.AddEntry(b))
	assert.Len(t, sink.packets(), 1)
}
