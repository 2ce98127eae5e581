package model

import (
	"time"
)

// PointsAccount 用户积分账户表
// 余额必须等于该用户全部积分流水之和，只允许由积分发放和兑换两条路径修改
type PointsAccount struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance         int64      `gorm:"not null;default:0" json:"balance"`           // 可用积分
	TotalEarned     int64      `gorm:"not null;default:0" json:"total_earned"`      // 累计获得积分，只增不减
	CurrentStreak   int        `gorm:"not null;default:0" json:"current_streak"`    // 当前连续打卡天数
	LongestStreak   int        `gorm:"not null;default:0" json:"longest_streak"`    // 历史最长连续打卡天数
	LastCheckInDate *time.Time `gorm:"type:date" json:"last_check_in_date"`         // 最近一次打卡日期（按业务时区取日）
	Version         int        `gorm:"not null;default:0" json:"version"`           // 每次变更递增，便于排查并发问题
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointsAccount) TableName() string {
	return "points_account"
}

// User 用户表，由身份服务维护，这里只读取姓名用于排行榜展示
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Role      string    `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}
