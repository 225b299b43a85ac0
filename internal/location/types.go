package location

import (
	"errors"
	"time"
)

// Sentinel errors for resource lookups.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrZoneNotFound     = errors.New("zone not found")
	ErrInvalidFrequency = errors.New("invalid cleaning frequency")
)

// Frequency is how often a zone needs cleaning.
type Frequency string

// Supported cleaning frequencies. Custom uses the zone's own interval.
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return Frequency(s), nil
	default:
		return "", ErrInvalidFrequency
	}
}

// Room groups zones under a user's account.
type Room struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Name      string     `json:"name"`
	Icon      string     `json:"icon,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Zone is a cleanable area inside a room.
type Zone struct {
	ID                 string     `json:"id"`
	RoomID             string     `json:"room_id"`
	Name               string     `json:"name"`
	Icon               string     `json:"icon,omitempty"`
	Frequency          Frequency  `json:"frequency"`
	CustomIntervalDays int        `json:"custom_interval_days,omitempty"`
	LastCleanedAt      *time.Time `json:"last_cleaned_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"-"`
}

// NextDue returns when the zone next needs cleaning, or nil if it has
// never been cleaned. Monthly is approximated as 30 days.
func (z *Zone) NextDue() *time.Time {
	if z.LastCleanedAt == nil {
		return nil
	}
	var interval time.Duration
	switch z.Frequency {
	case FrequencyDaily:
		interval = 24 * time.Hour
	case FrequencyWeekly:
		interval = 7 * 24 * time.Hour
	case FrequencyMonthly:
		interval = 30 * 24 * time.Hour
	case FrequencyCustom:
		days := z.CustomIntervalDays
		if days < 1 {
			days = 1
		}
		interval = time.Duration(days) * 24 * time.Hour
	default:
		return nil
	}
	due := z.LastCleanedAt.Add(interval)
	return &due
}

// IsDue reports whether the zone needs cleaning at the given time. A zone
// that was never cleaned is always due.
func (z *Zone) IsDue(now time.Time) bool {
	due := z.NextDue()
	if due == nil {
		return true
	}
	return !now.Before(*due)
}

// ZoneView is a zone plus its derived schedule state, as served by the API.
type ZoneView struct {
	Zone
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	Due       bool       `json:"is_due"`
}

// View derives the schedule state for serving.
func (z *Zone) View(now time.Time) ZoneView {
	return ZoneView{
		Zone:      *z,
		NextDueAt: z.NextDue(),
		Due:       z.IsDue(now),
	}
}
