package model

import (
	"time"
)

const (
	ActivityCheckIn     = "CHECK_IN"
	ActivityCheckOut    = "CHECK_OUT"
	ActivityStreakBonus = "STREAK_BONUS"
	ActivityManualBonus = "MANUAL_BONUS"

	// ActivityRedemption 兑换扣减专用，不能通过发放接口使用
	ActivityRedemption = "REWARD_REDEMPTION"
)

// PointActivity 积分活动配置表，管理员维护
// 停用活动只影响之后的发放，历史流水不变
type PointActivity struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ActivityCode string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"activity_code"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	Description  string    `gorm:"type:varchar(512)" json:"description"`
	BasePoints   int64     `gorm:"not null;default:0" json:"base_points"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointActivity) TableName() string {
	return "point_activity"
}

// DefaultActivities 启动时补齐的默认活动
func DefaultActivities() []*PointActivity {
	return []*PointActivity{
		{ActivityCode: ActivityCheckIn, Name: "上班打卡", BasePoints: 10, IsActive: true},
		{ActivityCode: ActivityCheckOut, Name: "下班打卡", BasePoints: 5, IsActive: true},
		{ActivityCode: ActivityStreakBonus, Name: "连续打卡奖励", BasePoints: 20, IsActive: true},
		{ActivityCode: ActivityManualBonus, Name: "管理员奖励", BasePoints: 0, IsActive: false},
	}
}
