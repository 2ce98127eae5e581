package model

import (
	"time"
)

const (
	RedemptionStatusPending   = "PENDING"
	RedemptionStatusCompleted = "COMPLETED"
	RedemptionStatusCancelled = "CANCELLED"
)

// 兑换单状态只允许从 PENDING 流转，COMPLETED 之后只能追加管理员备注
var ValidRedemptionTransitions = map[string][]string{
	RedemptionStatusPending: {RedemptionStatusCompleted, RedemptionStatusCancelled},
}

func CanRedemptionTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRedemptionTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidRedemptionStatus(status string) bool {
	switch status {
	case RedemptionStatusPending, RedemptionStatusCompleted, RedemptionStatusCancelled:
		return true
	}
	return false
}

// Redemption 兑换记录表，一条兑换记录对应一条扣减流水
type Redemption struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	UserID       int64     `gorm:"index;not null" json:"user_id"`
	RewardID     int64     `gorm:"index;not null" json:"reward_id"`
	RewardName   string    `gorm:"type:varchar(128)" json:"reward_name"`
	PointsSpent  int64     `gorm:"not null" json:"points_spent"`
	Status       string    `gorm:"type:varchar(20);index;not null" json:"status"`
	AdminNote    string    `gorm:"type:varchar(512)" json:"admin_note"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Redemption) TableName() string {
	return "redemption"
}

// RedemptionFilter 管理端兑换记录查询条件，零值表示不过滤
type RedemptionFilter struct {
	Status   string
	UserID   int64
	RewardID int64
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// RedemptionStat 按状态统计
type RedemptionStat struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Points int64  `json:"points"`
}
