package handler

import (
	"lobbyhub/backend/internal/hub"
	"lobbyhub/backend/internal/lobby"
)

// Package-level collaborators, wired once at startup.
var (
	Lobbies  *lobby.Service
	Notifier *hub.Notifier
)

// Init wires the handlers to the lobby core and the broadcast notifier.
func Init(svc *lobby.Service, notifier *hub.Notifier) {
	Lobbies = svc
	Notifier = notifier
}
