package model

import "time"

// ChatThread is the 1:1 conversation record of a Session. TurnCount is the
// sequence number of the last appended turn.
type ChatThread struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;uniqueIndex" json:"session_id"`
	TurnCount int       `gorm:"not null;default:0" json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatTurn is one user message and the assistant reply to it.
type ChatTurn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ThreadID  uint      `gorm:"not null;uniqueIndex:idx_thread_seq" json:"thread_id"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_thread_seq" json:"seq"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Reply     string    `gorm:"type:text;not null" json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}
