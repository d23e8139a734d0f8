package model

import (
	"time"

	"gorm.io/gorm"
)

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey"`
	Identity  string    `gorm:"size:256;not null;index"` // admin email, or the rate limit bucket
	EventType string    `gorm:"size:64;not null;index"`  // login_success, otp_failure...
	Reason    string    `gorm:"size:512"`                // failure reason or context
	IP        string    `gorm:"size:45;not null"`        // IPv4/IPv6
	UserAgent string    `gorm:"size:512;not null"`       // user agent string
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == 0 {
		e.ID = GenerateID()
	}
	return nil
}
