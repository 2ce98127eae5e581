package model

import (
	"time"
)

// Reward 兑换奖品表，库存只能被成功的兑换扣减
type Reward struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	Slug           string    `gorm:"type:varchar(160);index" json:"slug"`
	Description    string    `gorm:"type:varchar(512)" json:"description"`
	PointsCost     int64     `gorm:"not null" json:"points_cost"`
	StockRemaining int64     `gorm:"not null;default:0" json:"stock_remaining"`
	IsActive       bool      `gorm:"not null;index" json:"is_active"`
	Version        int       `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reward) TableName() string {
	return "reward"
}
