package models

import "time"

// RefreshToken is stored by digest; the plain token only exists on the client.
type RefreshToken struct {
	UserID  string
	Digest  string
	Expires time.Time
}
