package database

import "time"

// SessionRecord is the audit row for one terminal session. It holds
// lifecycle metadata only; terminal output is never persisted.
type SessionRecord struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	SessionID   string     `gorm:"uniqueIndex;not null" json:"session_id"`
	TargetID    string     `gorm:"index;not null" json:"target_id"`
	TargetName  string     `json:"target_name"`
	OpenedAt    time.Time  `json:"opened_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	// FinalState is the last known connection state.
	FinalState string    `gorm:"default:connecting" json:"final_state"`
	UpdatedAt  time.Time `json:"-"`
}
