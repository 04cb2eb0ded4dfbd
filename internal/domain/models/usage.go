package models

import "time"

// AnonymousUsage tracks conversions performed by an unauthenticated
// session within the current day. The counter resets lazily when the
// current date passes LastConversion's date.
type AnonymousUsage struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	IPAddress        string     `json:"ip_address,omitempty"`
	ConversionsToday int        `json:"conversions_today"`
	LastConversion   *time.Time `json:"last_conversion,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Remaining returns how many conversions the session has left today.
// A LastConversion before today means the window has rolled over and the
// full limit is available again.
func (u *AnonymousUsage) Remaining(limit int, now time.Time) int {
	if u.LastConversion == nil || beforeDay(*u.LastConversion, now) {
		return limit
	}
	if u.ConversionsToday >= limit {
		return 0
	}
	return limit - u.ConversionsToday
}

func beforeDay(t, now time.Time) bool {
	ty, tm, td := t.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	if ty != ny {
		return ty < ny
	}
	if tm != nm {
		return tm < nm
	}
	return td < nd
}
