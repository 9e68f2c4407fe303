package models

import "time"

// LobbyPlayer is the membership of one user in one lobby.
// The primary key is a composite of (LobbyID, UserID); the extra unique index on
// UserID enforces the system-wide rule that a user sits in at most one lobby.
type LobbyPlayer struct {
	LobbyID   uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey;uniqueIndex:idx_lobby_players_user"`
	Ready     bool `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
