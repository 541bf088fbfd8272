package models

import "time"

// CallLogRecord is one persisted call log entry.
type CallLogRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	EntryID   string    `gorm:"size:36;not null;uniqueIndex"`
	SessionID string    `gorm:"size:36;not null;index:idx_session_seq"`
	Seq       int       `gorm:"index:idx_session_seq"`
	Kind      string    `gorm:"size:32;index"`
	Message   string    `gorm:"type:text"`
	Data      string    `gorm:"type:text"`
	LoggedAt  time.Time `gorm:"index"`
	CreatedAt time.Time
}
