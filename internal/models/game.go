package models

import "gorm.io/gorm"

// Game is immutable reference data describing a playable title.
// MaxPlayers == 1 marks a single-player game, which never gets a lobby.
type Game struct {
	gorm.Model
	Slug       string `gorm:"size:64;unique;not null"`
	Name       string `gorm:"size:255;not null"`
	MinPlayers int    `gorm:"not null;default:2"`
	MaxPlayers int    `gorm:"not null;default:2"`
}

// Multiplayer reports whether the game uses the lobby subsystem at all.
func (g Game) Multiplayer() bool {
	return g.MaxPlayers > 1
}
