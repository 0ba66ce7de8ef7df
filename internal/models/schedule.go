package models

import "time"

// Frequency is how often a recurring schedule fires.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Valid returns true if the frequency is recognised.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// BackupSchedule is a recurring backup trigger. Hour is 0-23 UTC;
// DayOfWeek is 0-6 with Monday = 0. SiteID narrows the schedule to a
// single site when set.
type BackupSchedule struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Frequency Frequency  `json:"frequency" db:"frequency"`
	Hour      int        `json:"hour" db:"hour"`
	DayOfWeek int        `json:"day_of_week" db:"day_of_week"`
	SiteID    *int64     `json:"site_id,omitempty" db:"site_id"`
	Enabled   bool       `json:"enabled" db:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
