package hub

import (
	"fmt"

	"lobbyhub/backend/internal/lobby"
)

// Event names carried on lobby presence channels.
const (
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventReadyChanged = "ready_changed"
	EventLobbyStarted = "lobby_started"
	EventLobbyClosed  = "lobby_closed"
	EventMessageSent  = "message_sent"
)

// Event names carried on private user channels.
const (
	EventFriendRequestSent     = "friend_request_sent"
	EventFriendRequestAccepted = "friend_request_accepted"
	EventFriendRequestDeclined = "friend_request_declined"
	EventFriendRemoved         = "friend_removed"
	EventLobbyInvitation       = "lobby_invitation"
)

// Notifier translates lobby core events into hub frames. It satisfies
// lobby.Broadcaster; the service only calls it after its transaction commits.
// The "message" field in every payload is a display convenience; clients must
// not branch on its text.
type Notifier struct {
	hub *Hub
}

func NewNotifier(h *Hub) *Notifier {
	return &Notifier{hub: h}
}

func (n *Notifier) PlayerJoined(snap lobby.Snapshot, user lobby.UserView) {
	n.hub.Publish(LobbyChannel(snap.Code), Event{
		Name: EventPlayerJoined,
		Payload: map[string]interface{}{
			"lobby":   snap,
			"user":    user,
			"message": fmt.Sprintf("%s joined the lobby", user.Nickname),
		},
	})
}

func (n *Notifier) PlayerLeft(snap lobby.Snapshot, user lobby.UserView) {
	n.hub.Publish(LobbyChannel(snap.Code), Event{
		Name: EventPlayerLeft,
		Payload: map[string]interface{}{
			"lobby":   snap,
			"user":    user,
			"message": fmt.Sprintf("%s left the lobby", user.Nickname),
		},
	})
}

func (n *Notifier) ReadyChanged(snap lobby.Snapshot, user lobby.UserView, ready bool) {
	verb := "not ready"
	if ready {
		verb = "ready"
	}
	n.hub.Publish(LobbyChannel(snap.Code), Event{
		Name: EventReadyChanged,
		Payload: map[string]interface{}{
			"lobby":   snap,
			"user":    user,
			"ready":   ready,
			"message": fmt.Sprintf("%s is %s", user.Nickname, verb),
		},
	})
}

func (n *Notifier) LobbyStarted(snap lobby.Snapshot) {
	n.hub.Publish(LobbyChannel(snap.Code), Event{
		Name: EventLobbyStarted,
		Payload: map[string]interface{}{
			"lobby":   snap,
			"message": "The game is starting",
		},
	})
}

func (n *Notifier) LobbyClosed(code string, host lobby.UserView) {
	n.hub.Publish(LobbyChannel(code), Event{
		Name: EventLobbyClosed,
		Payload: map[string]interface{}{
			"lobby_code": code,
			"user":       host,
			"message":    "The host closed the lobby",
		},
	})
}

func (n *Notifier) MessageSent(code string, msg lobby.MessageView) {
	n.hub.Publish(LobbyChannel(code), Event{
		Name: EventMessageSent,
		Payload: map[string]interface{}{
			"lobby_code":   code,
			"chat_message": msg,
			"message":      fmt.Sprintf("%s sent a message", msg.User.Nickname),
		},
	})
}

// NotifyFriendEvent delivers a friendship notification to one user's private
// channel.
func (n *Notifier) NotifyFriendEvent(event string, toUserID uint, from lobby.UserView, text string) {
	n.hub.Publish(UserChannel(toUserID), Event{
		Name: event,
		Payload: map[string]interface{}{
			"user":    from,
			"message": text,
		},
	})
}

// NotifyLobbyInvitation delivers a lobby invitation to the invited user's
// private channel.
func (n *Notifier) NotifyLobbyInvitation(toUserID uint, from lobby.UserView, snap lobby.Snapshot) {
	n.hub.Publish(UserChannel(toUserID), Event{
		Name: EventLobbyInvitation,
		Payload: map[string]interface{}{
			"user":    from,
			"lobby":   snap,
			"message": fmt.Sprintf("%s invited you to a %s lobby", from.Nickname, snap.Game.Name),
		},
	})
}
