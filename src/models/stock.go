package models

import (
	"gorm.io/gorm"
)

type Stock struct {
	gorm.Model
	Ticker      StockSymbol `gorm:"column:ticker;type:text;not null;uniqueIndex"`
	CompanyName string      `gorm:"column:company_name;type:text"`
	Status      StockStatus `gorm:"column:status;type:text;not null;default:active"`
}

type WatchlistEntry struct {
	gorm.Model
	StockID          uint             `gorm:"column:stock_id;not null;uniqueIndex"`
	Stock            Stock            `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE"`
	MonitoringStatus MonitoringStatus `gorm:"column:monitoring_status;type:text;not null;default:active"`
	Notes            string           `gorm:"column:notes;type:text"`
}

type WatchlistItemDTO struct {
	Ticker           StockSymbol      `json:"ticker"`
	CompanyName      string           `json:"company_name"`
	Status           StockStatus      `json:"status"`
	MonitoringStatus MonitoringStatus `json:"monitoring_status"`
	Notes            string           `json:"notes,omitempty"`
	DataPoints       int64            `json:"data_points"`
}
