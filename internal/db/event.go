package db

import (
	"time"

	"gorm.io/datatypes"
)

// GameEvent is one published game event.
type GameEvent struct {
	ID        uint           `gorm:"primaryKey"`
	GameCode  string         `gorm:"size:12;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
