package models

import "time"

// User is an account holder. Accounts have unlimited standard
// conversions; pro conversions draw down a monthly page quota.
type User struct {
	ID            string     `json:"id"` // subject claim from the auth provider
	Email         string     `json:"email"`
	APIKeyHash    string     `json:"-"` // sha256 hex of the API key
	IsPro         bool       `json:"is_pro"`
	ProPagesUsed  int        `json:"pro_pages_used"`
	ProPagesLimit int        `json:"pro_pages_limit"`
	UsageMonth    time.Time  `json:"usage_month"` // first day of the tracked month
	CreatedAt     time.Time  `json:"created_at"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
}

// ProPagesRemaining returns the pro page budget left in the current
// calendar month. A UsageMonth before the current month means the window
// rolled over and the full limit is available.
func (u *User) ProPagesRemaining(now time.Time) int {
	if !u.IsPro {
		return 0
	}
	y, m, _ := now.UTC().Date()
	uy, um, _ := u.UsageMonth.UTC().Date()
	if uy < y || (uy == y && um < m) {
		return u.ProPagesLimit
	}
	if u.ProPagesUsed >= u.ProPagesLimit {
		return 0
	}
	return u.ProPagesLimit - u.ProPagesUsed
}
