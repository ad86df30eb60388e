/**
 * @description
 * API usage log database model — append-only audit of every external call
 * attempt gated by the quota ledger. Prior entries are never mutated.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Usage log statuses
const (
	UsageStatusSuccess = "success"
	UsageStatusBlocked = "blocked"
	UsageStatusError   = "error"
)

// APIUsageLog records one quota-gated call attempt against an external service
type APIUsageLog struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Service        string    `gorm:"size:50;not null;index" json:"service"`
	Endpoint       string    `gorm:"size:255" json:"endpoint"`
	Status         string    `gorm:"size:20;not null;default:'success'" json:"status"` // success, blocked, error
	ResponseTimeMs float64   `json:"response_time_ms"`
	RecordsFetched int       `gorm:"default:0" json:"records_fetched"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	DailyCount     int       `json:"daily_count"`
	DailyLimit     int       `json:"daily_limit"`
	CalledAt       time.Time `gorm:"autoCreateTime;index" json:"called_at"`
}

func (APIUsageLog) TableName() string {
	return "api_usage_logs"
}
