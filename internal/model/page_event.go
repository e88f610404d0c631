package model

import "time"

// PageEvent is the single folded record for a (session, page) pair.
// Duration is the cumulative time the client reports for the page;
// scroll depth and zoom level are high-water marks.
type PageEvent struct {
	SessionToken    string    `gorm:"primaryKey;size:64;not null"`
	PageNumber      int       `gorm:"primaryKey;autoIncrement:false;not null"`
	DocumentID      string    `gorm:"size:36;not null;index"`
	Duration        float64   `gorm:"not null;default:0"`
	ScrollDepth     float64   `gorm:"not null;default:0"`
	ZoomLevel       float64   `gorm:"not null;default:1"`
	TimeToFirstView float64   `gorm:"not null;default:0"`
	IsComplete      bool      `gorm:"not null"`
	FirstSeenAt     time.Time `gorm:"not null"`
	LastUpdatedAt   time.Time `gorm:"not null"`
}

func (PageEvent) TableName() string {
	return "page_events"
}
