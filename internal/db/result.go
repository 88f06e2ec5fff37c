package db

import (
	"time"

	"gorm.io/datatypes"
)

// GameResult is written once per game instance. Codes are reused after a
// game is purged, so the instance is the code plus its creation time.
type GameResult struct {
	ID            uint           `gorm:"primaryKey"`
	GameCode      string         `gorm:"size:12;not null;uniqueIndex:idx_game_results_instance,priority:1"`
	GameCreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;uniqueIndex:idx_game_results_instance,priority:2"`
	GameType      string         `gorm:"size:32;not null"`
	Rounds        int            `gorm:"not null"`
	Winner        string         `gorm:"size:64"`
	FinalScores   datatypes.JSON `gorm:"type:jsonb;not null"`
	CompletedAt   time.Time      `gorm:"not null"`
}

// legacyResultIndex made game codes unique forever.
const legacyResultIndex = "idx_game_results_game_code"
