package model

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether no further status transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// ClientMeta is what the classifier derives from the viewer's request.
type ClientMeta struct {
	DeviceType      string `gorm:"size:50"`
	Browser         string `gorm:"size:100"`
	OperatingSystem string `gorm:"size:100"`
	IPAddress       string `gorm:"size:45"`
	UserAgent       string `gorm:"size:512"`
}

// ViewingSession is one visit through a link.
// TotalDuration and UniquePages are caches over the session's page events,
// rewritten by the aggregator after every mutation.
type ViewingSession struct {
	Token          string    `gorm:"primaryKey;size:64;not null"`
	DocumentID     string    `gorm:"size:36;not null;index:idx_viewing_sessions_document_started,priority:1"`
	LinkToken      string    `gorm:"size:64;index"`
	StartedAt      time.Time `gorm:"not null;index:idx_viewing_sessions_document_started,priority:2"`
	EndedAt        *time.Time
	LastActivityAt time.Time     `gorm:"not null;index"`
	TotalPages     int           `gorm:"not null;default:0"`
	UniquePages    int           `gorm:"not null;default:0"`
	TotalDuration  float64       `gorm:"not null;default:0"`
	Status         SessionStatus `gorm:"size:16;not null;index"`
	IsAdmin        bool          `gorm:"not null"`
	Email          *string       `gorm:"size:255"`
	ClientMeta     `gorm:"embedded"`
}

func (ViewingSession) TableName() string {
	return "viewing_sessions"
}
