package model

import "time"

// MaxMessageLength is the longest message text accepted, counted in runes.
const MaxMessageLength = 140

// Message is a short post owned by exactly one user.
//
// Author is populated by queries that join the owner (timelines, profile
// pages, like lists) and is nil otherwise.
type Message struct {
	ID        int64     `json:"id"        db:"id"`
	Text      string    `json:"text"      db:"text"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	UserID    int64     `json:"userId"    db:"user_id"`
	Author    *User     `json:"author,omitempty"`
}

// OwnedBy reports whether the message belongs to the given user.
func (m *Message) OwnedBy(userID int64) bool {
	return m.UserID == userID
}
