package model

import "time"

// User is an applicant whose queues are tracked. The password and the
// remember-me session fields are opaque to everything but the auth
// collaborator; the rest of the system only reads GoalDate and the name
// fields for reporting.
type User struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;size:256;not null" json:"email"`
	Password      string    `gorm:"size:256" json:"-"`
	SessionToken  string    `gorm:"size:512" json:"-"`
	SessionExpiry time.Time `json:"-"`
	FirstName     string    `gorm:"size:128" json:"firstname"`
	LastName      string    `gorm:"size:128" json:"lastname"`
	GoalDate      time.Time `gorm:"type:date" json:"goal_date"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`

	// Associations
	Rooms []Room `gorm:"foreignKey:UserID"`
}

// SessionValid reports whether the stored remember-me token can still be
// replayed at the given instant.
func (u *User) SessionValid(now time.Time) bool {
	return u.SessionToken != "" && u.SessionExpiry.After(now)
}
