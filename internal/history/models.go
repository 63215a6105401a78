// Package history persists conversation threads and their turns, and keeps
// the full-text index over turn content in lockstep with the rows.
package history

import "time"

// Session is one conversation thread.
type Session struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UID          string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Model        string    `gorm:"type:varchar(64);not null" json:"model"`
	Temperature  float64   `gorm:"not null;default:0.7" json:"temperature"`
	Archived     bool      `gorm:"not null;default:false" json:"archived"`
	ModelfileUID *string   `gorm:"type:varchar(36)" json:"modelfileUid,omitempty"`
	Metadata     string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Session) TableName() string { return "sessions" }

// Turn is one prompt/reply exchange. A row exists only once the full reply
// is known; aborted sends never produce one.
type Turn struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UID        string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	SessionID  uint64    `gorm:"index;not null" json:"-"`
	Prompt     string    `gorm:"type:text;not null" json:"prompt"`
	Reply      string    `gorm:"type:text;not null" json:"reply"`
	Role       string    `gorm:"type:varchar(16);not null;default:assistant" json:"role"`
	Provenance string    `gorm:"type:text" json:"provenance,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Turn) TableName() string { return "turns" }

// SessionSummary is a Session plus its turn count, for listings.
type SessionSummary struct {
	Session
	TotalChats int64 `json:"totalChats"`
}

// SearchHit is one full-text match joined back to its turn and session.
type SearchHit struct {
	SessionUID string    `json:"sessionUid"`
	TurnUID    string    `json:"chatUid"`
	Prompt     string    `json:"prompt"`
	Reply      string    `json:"reply"`
	CreatedAt  time.Time `json:"createdAt"`
}
