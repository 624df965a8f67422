package models

import "time"

// Alert records a tripped threshold. Only Resolved ever changes after insert.
type Alert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ReadingID *uint     `gorm:"index" json:"reading_id"`
	Reading   *Reading  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Message   string    `gorm:"size:256" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	Resolved  bool      `gorm:"not null;default:false" json:"resolved"`
}

// Status is "resolved" or "open".
func (a Alert) Status() string {
	if a.Resolved {
		return "resolved"
	}
	return "open"
}
