package model

import (
	"time"

	"gorm.io/gorm"
)

// RootAdmin is an account allowed to reach the root admin surface.
type RootAdmin struct {
	ID           uint64 `gorm:"primarykey"`
	Email        string `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash string `gorm:"size:64;not null"`
	Disabled     bool   `gorm:"default:false;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (a *RootAdmin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}
