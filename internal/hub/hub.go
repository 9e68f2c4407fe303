package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
)

// Channel name prefixes form the external transport contract.
const (
	userChannelPrefix  = "private-user."
	lobbyChannelPrefix = "presence-lobby."
)

// ErrUnauthorized is returned when a subscriber fails the channel's
// authorization check.
var ErrUnauthorized = errors.New("not authorized for this channel")

// Event is a real-time event fanned out to channel subscribers. Payload fields
// are flattened into the frame next to the event name.
type Event struct {
	Name    string
	Payload map[string]interface{}
}

// MarshalJSON flattens the payload around the event name so clients see
// {"event": "...", ...fields}.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["event"] = e.Name
	return json.Marshal(out)
}

// Client is a single subscriber connection: a channel the transport handler
// drains. One client may be subscribed to many named channels.
type Client chan []byte

// Authorizer decides, at subscribe time, whether userID may join a channel.
// The decision is never cached; a kicked member fails their next subscribe.
type Authorizer func(ctx context.Context, channel string, userID uint) bool

// MembershipChecker is what the hub needs from the lobby core to authorize
// presence channels.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID uint, code string) bool
}

// Hub fans events out over named channels. Two channel classes exist:
// private-user.{id} for direct notifications and presence-lobby.{code} for
// lobby-wide events.
type Hub struct {
	channels  map[string]map[Client]bool
	mu        sync.RWMutex
	authorize Authorizer
}

// NewHub creates a hub with the given channel authorizer. A nil authorizer
// admits everyone; tests use that.
func NewHub(authorize Authorizer) *Hub {
	return &Hub{
		channels:  make(map[string]map[Client]bool),
		authorize: authorize,
	}
}

// NewAuthorizer builds the standard channel policy: a private user channel
// admits only the addressed user, a presence lobby channel admits only users
// holding a current membership row.
func NewAuthorizer(members MembershipChecker) Authorizer {
	return func(ctx context.Context, channel string, userID uint) bool {
		if id, ok := ParseUserChannel(channel); ok {
			return id == userID
		}
		if code, ok := ParseLobbyChannel(channel); ok {
			return members.IsMember(ctx, userID, code)
		}
		return false
	}
}

// UserChannel returns the private channel name for a user.
func UserChannel(userID uint) string {
	return fmt.Sprintf("%s%d", userChannelPrefix, userID)
}

// LobbyChannel returns the presence channel name for a lobby code.
func LobbyChannel(code string) string {
	return lobbyChannelPrefix + code
}

// ParseUserChannel extracts the user id from a private channel name.
func ParseUserChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// ParseLobbyChannel extracts the lobby code from a presence channel name.
func ParseLobbyChannel(channel string) (string, bool) {
	return strings.CutPrefix(channel, lobbyChannelPrefix)
}

// Subscribe adds a client to a named channel after re-running the channel's
// authorization check. Already-open subscriptions are not revisited when
// membership later changes; that is an accepted limitation of the design.
func (h *Hub) Subscribe(ctx context.Context, channel string, userID uint, client Client) error {
	if h.authorize != nil && !h.authorize(ctx, channel, userID) {
		return ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[Client]bool)
	}
	h.channels[channel][client] = true
	return nil
}

// Unsubscribe removes a client from a channel. The client's send channel stays
// open; the transport owns its lifecycle since one client can hold several
// subscriptions.
func (h *Hub) Unsubscribe(channel string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish sends an event to every subscriber of the channel. Delivery is
// best-effort: marshal failures are logged and slow clients skip the frame
// rather than blocking the hub.
func (h *Hub) Publish(channel string, event Event) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: drop event %q on %s: %v", event.Name, channel, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[channel] {
		// Non-blocking send so a slow client cannot stall the fan-out.
		select {
		case client <- messageBytes:
		default:
		}
	}
}

// Subscribers reports how many clients a channel currently has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
