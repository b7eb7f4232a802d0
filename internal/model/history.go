package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

type History struct {
	gorm.Model
	Status    SyncStatus `gorm:"not null;index" json:"status"`
	Operation Operation  `gorm:"not null" json:"operation"`
	FileEvent string     `json:"file_event"`
	Source    string     `gorm:"not null;index" json:"source"`
	SrcPath   string     `json:"src_path"`
	DstPath   string     `json:"dst_path"`
	ErrMsg    string     `json:"err_msg,omitempty"`
	SyncedAt  time.Time  `gorm:"not null" json:"synced_at"`
}
