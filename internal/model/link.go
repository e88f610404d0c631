package model

import "time"

// LinkMapping maps a rotating public token to a document.
// At most one mapping per document is active; the partial unique index backs that up.
type LinkMapping struct {
	PublicToken string `gorm:"primaryKey;size:64;not null"`
	DocumentID  string `gorm:"size:36;not null;index:idx_link_mappings_document_id;uniqueIndex:idx_link_mappings_active_document,where:active = true"`
	Active      bool   `gorm:"not null;index"`
	ViewCount   int64  `gorm:"not null;default:0"`
	LastUsedAt  *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}

func (LinkMapping) TableName() string {
	return "link_mappings"
}
