package models

import "time"

// CallSession is the persisted summary of one dialer session.
type CallSession struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	SessionID       string `gorm:"size:36;not null;uniqueIndex"`
	CallerChannelID string `gorm:"size:128;index"`
	Phone           string `gorm:"size:32"`
	Name            string `gorm:"size:128"`
	Email           string `gorm:"size:256"`
	CampaignID      string `gorm:"size:64;index"`
	CallType        string `gorm:"size:16"`
	Status          string `gorm:"size:16;default:connecting;index"`
	Error           string `gorm:"type:text"`
	StartedAt       time.Time
	EndedAt         *time.Time
	UpdatedAt       time.Time
}
