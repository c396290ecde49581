// Package model defines the data structures used throughout the application.
package model

// Default images assigned when a user leaves the image fields empty.
const (
	DefaultImageURL       = "/static/images/default-pic.png"
	DefaultHeaderImageURL = "/static/images/warbler-hero.png"
)

// User represents a registered account.
//
// PasswordHash holds the bcrypt digest and never the plaintext. It is
// excluded from JSON so a User can be logged or encoded safely.
type User struct {
	ID             int64  `json:"id"             db:"id"`
	Username       string `json:"username"       db:"username"`
	Email          string `json:"email"          db:"email"`
	PasswordHash   string `json:"-"              db:"password"`
	ImageURL       string `json:"imageUrl"       db:"image_url"`
	HeaderImageURL string `json:"headerImageUrl" db:"header_image_url"`
	Bio            string `json:"bio"            db:"bio"`      // optional, "" when unset
	Location       string `json:"location"       db:"location"` // optional, "" when unset
}

// ApplyImageDefaults fills empty image fields with the default images.
func (u *User) ApplyImageDefaults() {
	if u.ImageURL == "" {
		u.ImageURL = DefaultImageURL
	}
	if u.HeaderImageURL == "" {
		u.HeaderImageURL = DefaultHeaderImageURL
	}
}

// UserStats holds the counters shown on a profile page.
type UserStats struct {
	Messages  int
	Following int
	Followers int
	Likes     int
}
