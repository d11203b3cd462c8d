package model

import (
	"time"

	"gorm.io/datatypes"
)

const MaxSessionNameLength = 100

// Session is one ingested document and its derived analysis.
// ImageURLs is in source page order.
type Session struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	UserID        uint                        `gorm:"not null;index" json:"user_id"`
	Name          string                      `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Specification string                      `gorm:"type:text" json:"specification"`
	SourceURL     string                      `gorm:"column:source_url;size:2048" json:"source_url"`
	ImageURLs     datatypes.JSONSlice[string] `gorm:"column:image_urls" json:"image_urls"`
	OCRText       string                      `gorm:"column:ocr_text;type:longtext" json:"ocr_text"`
	Document      string                      `gorm:"type:longtext" json:"document"`
	Keywords      datatypes.JSONSlice[string] `json:"keywords"`
	FailedPages   datatypes.JSONSlice[int]    `json:"failed_pages"`
	LastActivity  time.Time                   `gorm:"index" json:"last_activity"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// GroundingText is the text chat answers are constrained to.
func (s *Session) GroundingText() string {
	if s.Document != "" {
		return s.Document
	}
	return s.OCRText
}

// SessionActivity records that a session was used at At.
type SessionActivity struct {
	SessionID uint      `json:"session_id"`
	At        time.Time `json:"at"`
}
