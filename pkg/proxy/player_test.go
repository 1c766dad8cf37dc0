package proxy

import (
	"bufio"
	"net"
	"testing"
	"time"

	"go.minekube.com/gate/pkg/config"
	"go.minekube.com/gate/pkg/proto"
	"go.minekube.com/gate/pkg/proto/packet"
	"go.minekube.com/gate/pkg/tablist"
	"go.minekube.com/gate/pkg/util/gameprofile"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPlayer wires a connectedPlayer to an in-memory socket pair and
// returns a function that reads the next packet the player's connection
// wrote, decoded with the same stand-in codec the connection uses.
func newTestPlayer(t *testing.T) (*connectedPlayer, func() proto.Packet) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = server.Close(); _ = client.Close() })

	cfg := config.Default()
	px := New(*cfg)
	conn := newMinecraftConn(client, px)

	profile := &gameprofile.GameProfile{Id: uuid.New(), Name: "Steve"}
	pl := newConnectedPlayer(conn, profile, &net.TCPAddr{}, true)

	var cdc packetCodec
	recv := make(chan proto.Packet, 16)
	go func() {
		r := bufio.NewReader(server)
		for {
			pk, err := cdc.decode(r)
			if err != nil {
				close(recv)
				return
			}
			recv <- pk
		}
	}()

	return pl, func() proto.Packet {
		select {
		case pk, ok := <-recv:
			if !ok {
				t.Fatal("connection closed before packet arrived")
			}
			return pk
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for packet")
			return nil
		}
	}
}

func newTestBackend(t *testing.T, px *Proxy, name string) *serverConnection {
	t.Helper()
	_, backendSide := net.Pipe()
	t.Cleanup(func() { _ = backendSide.Close() })

	sc := newServerConnection(&registeredServer{info: &config.ServerInfo{Name: name}}, nil)
	sc.setConn(newMinecraftConn(backendSide, px))
	return sc
}

func TestHandleBackendJoinGameClearsTabListOnServerSwitch(t *testing.T) {
	player, next := newTestPlayer(t)
	handler := newClientPlaySessionHandler(player)

	serverA := newTestBackend(t, player.proxy, "a")
	player.setConnectedServer(serverA)

	guest := &gameprofile.GameProfile{Id: uuid.New(), Name: "Alex"}
	entry := player.TabList().BuildEntry(guest, nil, 0, tablist.GameModeSurvival, nil, true, 0)
	require.NoError(t, player.TabList().AddEntry(entry))
	upsert, ok := next().(*packet.UpsertPlayerInfo)
	require.True(t, ok)
	assert.True(t, upsert.ActionSet.Has(packet.AddPlayer))

	require.True(t, handler.handleBackendJoinGame(serverA))

	serverB := newTestBackend(t, player.proxy, "b")
	player.setConnectedServer(serverB)
	require.True(t, handler.handleBackendJoinGame(serverB))

	removed, ok := next().(*packet.RemovePlayerInfo)
	require.True(t, ok)
	require.Len(t, removed.ProfilesToRemove, 1)
	assert.Equal(t, guest.Id, removed.ProfilesToRemove[0])
}

func TestSpoofChatInputRejectsOverlongMessage(t *testing.T) {
	player, _ := newTestPlayer(t)
	err := player.SpoofChatInput(string(make([]byte, 300)))
	assert.ErrorIs(t, err, ErrTooLongChatMessage)
}

func TestSpoofChatInputWithoutBackendConnection(t *testing.T) {
	player, _ := newTestPlayer(t)
	err := player.SpoofChatInput("hello")
	assert.ErrorIs(t, err, ErrNoBackendConnection)
}
