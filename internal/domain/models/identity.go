package models

// Identity is who is submitting a conversion: an authenticated account
// (UserID set) or an anonymous browser session (SessionID set). Exactly
// one of the two is non-empty.
type Identity struct {
	UserID     string
	SessionID  string
	RemoteAddr string
}

// Authenticated reports whether the identity is an account holder.
func (i Identity) Authenticated() bool { return i.UserID != "" }
