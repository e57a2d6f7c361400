package models

import "time"

// PresetPhrase is a canned message the owner can send with one button
// press. Seeded at first boot and extendable via the import script.
type PresetPhrase struct {
	ID        uint   `gorm:"primaryKey"`
	Text      string `gorm:"uniqueIndex;not null"`
	Category  string `gorm:"index;not null;default:'general'"`
	SortOrder int    `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (PresetPhrase) TableName() string {
	return "preset_phrases"
}
