package models

import "time"

// LobbyMessage is one chat line inside a lobby. Rows are append-only; they are
// only ever removed when the owning lobby is torn down.
type LobbyMessage struct {
	ID        uint   `gorm:"primaryKey"`
	LobbyID   uint   `gorm:"not null;index"`
	UserID    uint   `gorm:"not null"`
	Message   string `gorm:"size:500;not null"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
