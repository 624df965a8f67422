package models

import "time"

// DisplayTimeLayout is the layout used for every human-facing timestamp.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// SoilStatusUnknown is reported when a device sends no soil status.
const SoilStatusUnknown = "Unknown"

// Reading is one persisted sensor sample. Timestamp is always UTC.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Humidity    float64   `gorm:"not null" json:"humidity"`
	Soil        int       `gorm:"not null" json:"soil"`
	SoilStatus  string    `gorm:"size:16;not null" json:"soil_status"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
}

func (Reading) TableName() string {
	return "sensor_readings"
}

// Snapshot is the denormalized view of a reading kept in the rolling cache.
// Time is already converted to the display timezone.
type Snapshot struct {
	Temperature float64  `json:"temperature"`
	Humidity    float64  `json:"humidity"`
	Soil        int      `json:"soil"`
	SoilStatus  string   `json:"soil_status"`
	HeatIndex   *float64 `json:"heat_index"`
	Time        *string  `json:"time"`
}

// EmptySnapshot is what /latest-sensor reports before anything was ingested.
func EmptySnapshot() Snapshot {
	return Snapshot{SoilStatus: SoilStatusUnknown}
}

// LocalTime formats t in loc using DisplayTimeLayout.
func LocalTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayTimeLayout)
}
