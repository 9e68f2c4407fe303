package models

import "gorm.io/gorm"

// Lobby is a joinable pre-game room scoped to one game, identified by a short code.
// Started is a one-way flag: once true the lobby accepts no membership changes.
type Lobby struct {
	gorm.Model
	GameID       uint    `gorm:"not null;index"`
	HostID       uint    `gorm:"not null"`
	Code         string  `gorm:"size:8;unique;not null"`
	PasswordHash *string `gorm:"size:255"`
	Started      bool    `gorm:"not null;default:false"`

	Game     Game           `gorm:"foreignKey:GameID"`
	Host     User           `gorm:"foreignKey:HostID"`
	Players  []LobbyPlayer  `gorm:"foreignKey:LobbyID"`
	Messages []LobbyMessage `gorm:"foreignKey:LobbyID"`
}
