/**
 * @description
 * Market data database model.
 * Maps to the 'market_points' table — one OHLCV + delivery-volume row per
 * (symbol, trading date, data mode). Re-fetching the same day upserts.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// MarketPoint represents one day of trading activity for a symbol
type MarketPoint struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol         string    `gorm:"size:30;not null;index;uniqueIndex:idx_market_symbol_date" json:"symbol"`
	Date           time.Time `gorm:"not null;index;uniqueIndex:idx_market_symbol_date" json:"date"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         int64     `json:"volume"`
	DeliveryVolume int64     `json:"delivery_volume"`
	DeliveryPct    float64   `json:"delivery_pct"` // delivery volume / total volume, percent
	FetchedAt      time.Time `gorm:"autoCreateTime" json:"fetched_at"`
	DataSource     string    `gorm:"size:10;not null;default:'test';index;uniqueIndex:idx_market_symbol_date" json:"data_source"`
}

func (MarketPoint) TableName() string {
	return "market_points"
}
