package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "private-user.42", UserChannel(42))
	assert.Equal(t, "presence-lobby.A1B2C3D4", LobbyChannel("A1B2C3D4"))

	id, ok := ParseUserChannel("private-user.42")
	require.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = ParseUserChannel("private-user.not-a-number")
	assert.False(t, ok)

	code, ok := ParseLobbyChannel("presence-lobby.A1B2C3D4")
	require.True(t, ok)
	assert.Equal(t, "A1B2C3D4", code)

	_, ok = ParseLobbyChannel("private-user.42")
	assert.False(t, ok)
}

func TestEventMarshalFlattensPayload(t *testing.T) {
	data, err := json.Marshal(Event{
		Name:    "ready_changed",
		Payload: map[string]interface{}{"ready": true},
	})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "ready_changed", out["event"])
	assert.Equal(t, true, out["ready"])
}

func TestPublishFansOutToSubscribersOnly(t *testing.T) {
	h := NewHub(nil)

	inLobby := make(Client, 1)
	elsewhere := make(Client, 1)
	require.NoError(t, h.Subscribe(context.Background(), LobbyChannel("AAAA0000"), 1, inLobby))
	require.NoError(t, h.Subscribe(context.Background(), LobbyChannel("BBBB1111"), 2, elsewhere))

	h.Publish(LobbyChannel("AAAA0000"), Event{Name: "player_joined"})

	select {
	case frame := <-inLobby:
		assert.Contains(t, string(frame), "player_joined")
	default:
		t.Fatal("subscriber did not receive the event")
	}
	select {
	case <-elsewhere:
		t.Fatal("event leaked to a different channel")
	default:
	}
}

func TestSlowClientDoesNotBlockPublish(t *testing.T) {
	h := NewHub(nil)

	full := make(Client) // no buffer, no reader
	healthy := make(Client, 1)
	require.NoError(t, h.Subscribe(context.Background(), LobbyChannel("AAAA0000"), 1, full))
	require.NoError(t, h.Subscribe(context.Background(), LobbyChannel("AAAA0000"), 2, healthy))

	// Must return immediately, skipping the stuck client.
	h.Publish(LobbyChannel("AAAA0000"), Event{Name: "message_sent"})

	select {
	case frame := <-healthy:
		assert.Contains(t, string(frame), "message_sent")
	default:
		t.Fatal("healthy subscriber starved by slow client")
	}
}

// memberSet authorizes lobby channels from a fixed membership table.
type memberSet map[string][]uint

func (m memberSet) IsMember(_ context.Context, userID uint, code string) bool {
	for _, id := range m[code] {
		if id == userID {
			return true
		}
	}
	return false
}

func TestAuthorizer(t *testing.T) {
	authorize := NewAuthorizer(memberSet{"AAAA0000": {7}})

	assert.True(t, authorize(context.Background(), UserChannel(3), 3))
	assert.False(t, authorize(context.Background(), UserChannel(3), 4), "private channels admit only the addressed user")

	assert.True(t, authorize(context.Background(), LobbyChannel("AAAA0000"), 7))
	assert.False(t, authorize(context.Background(), LobbyChannel("AAAA0000"), 8), "lobby channels require a membership row")

	assert.False(t, authorize(context.Background(), "some-other-channel", 7))
}

func TestSubscribeReChecksAuthorization(t *testing.T) {
	members := memberSet{"AAAA0000": {7}}
	h := NewHub(NewAuthorizer(members))
	channel := LobbyChannel("AAAA0000")

	client := make(Client, 1)
	require.NoError(t, h.Subscribe(context.Background(), channel, 7, client))
	assert.Equal(t, 1, h.Subscribers(channel))

	// Kicked: the next subscribe attempt fails, the open one stays.
	members["AAAA0000"] = nil
	rejoining := make(Client, 1)
	err := h.Subscribe(context.Background(), channel, 7, rejoining)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, h.Subscribers(channel))
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	channel := LobbyChannel("AAAA0000")

	client := make(Client, 1)
	require.NoError(t, h.Subscribe(context.Background(), channel, 1, client))
	h.Unsubscribe(channel, client)
	assert.Equal(t, 0, h.Subscribers(channel))

	// Removing an absent client is a no-op.
	h.Unsubscribe(channel, client)

	h.Publish(channel, Event{Name: "player_left"})
	select {
	case <-client:
		t.Fatal("unsubscribed client still receives events")
	default:
	}
}
