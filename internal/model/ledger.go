package model

import (
	"time"
)

// LedgerEntry 积分流水表
//
// 流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 同一用户、同一活动、同一来源只允许一条流水（唯一索引保证发放幂等）
// 3. 记录变动后余额，便于对账
type LedgerEntry struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	UserID       int64     `gorm:"not null;uniqueIndex:idx_ledger_ref,priority:1;index:idx_ledger_user_time,priority:1" json:"user_id"`
	ActivityCode string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_ref,priority:2" json:"activity_code"`
	ReferenceID  string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_ledger_ref,priority:3" json:"reference_id"`
	Points       int64     `gorm:"not null" json:"points"` // 正数发放，负数兑换扣减
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Remark       string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt    time.Time `gorm:"not null;index;index:idx_ledger_user_time,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "points_ledger_entry"
}

// LeaderboardRow 排行榜聚合结果
type LeaderboardRow struct {
	UserID           int64
	TotalPoints      int64
	AccountCreatedAt time.Time
}

// ActivityPoints 按活动汇总的积分
type ActivityPoints struct {
	ActivityCode string `json:"activity_code"`
	Entries      int64  `json:"entries"`
	Points       int64  `json:"points"`
}

// LedgerSum 单个账户的流水汇总，对账使用
type LedgerSum struct {
	UserID      int64
	Balance     int64
	TotalEarned int64
	SumPoints   int64
	SumPositive int64
}

// AccountTotals 全部账户汇总
type AccountTotals struct {
	Accounts     int64 `json:"accounts"`
	TotalEarned  int64 `json:"total_earned"`
	TotalBalance int64 `json:"total_balance"`
}
