package model

import "time"

// Observation is one daily queue-position snapshot for a room.
// The (room_id, date) pair is unique; a day's row is immutable unless the
// ingest policy explicitly allows updates.
type Observation struct {
	ID       int64     `gorm:"primaryKey" json:"-"`
	RoomID   int64     `gorm:"column:room_id;not null;uniqueIndex:uq_observation_room_date,priority:1" json:"room_id"`
	Date     time.Time `gorm:"column:date;type:date;not null;uniqueIndex:uq_observation_room_date,priority:2" json:"date"`
	Capacity int       `gorm:"not null" json:"capacity"`
	Position int       `gorm:"column:pos;not null" json:"pos"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
