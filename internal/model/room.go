package model

import "time"

// Room represents one waiting-list queue on the accommodation site.
// ExtID is the site's stable identifier; the internal ID is assigned on
// first sight and never changes afterwards.
type Room struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	UserID      int64  `gorm:"index;not null" json:"user_id"`
	ExtID       int64  `gorm:"column:ext_id;uniqueIndex;not null" json:"ext_id"`
	TypeCode    string `gorm:"size:64;not null" json:"type"`
	Description string `gorm:"size:256;not null" json:"description"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Observations []Observation `gorm:"foreignKey:RoomID"`
}
