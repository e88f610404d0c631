package model

import (
	"time"

	"gorm.io/gorm"
)

// Document is the stable identity of a distributed document.
// The ID never changes; public links rotate around it.
type Document struct {
	ID        string `gorm:"primaryKey;size:36;not null"`
	Name      string `gorm:"not null"`
	PageCount int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"` // soft delete hides the document, never its sessions
}

func (Document) TableName() string {
	return "documents"
}

// Deleted reports whether the document was soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt.Valid
}
