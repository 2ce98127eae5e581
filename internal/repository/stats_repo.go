package repository

import (
	"context"

	"pointsystem/internal/model"
)

func (s *GormStore) SumAccounts(ctx context.Context) (*model.AccountTotals, error) {
	var totals model.AccountTotals
	err := s.db.WithContext(ctx).
		Model(&model.PointsAccount{}).
		Select("COUNT(*) AS accounts, COALESCE(SUM(total_earned), 0) AS total_earned, COALESCE(SUM(balance), 0) AS total_balance").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (s *GormStore) SumPointsByActivity(ctx context.Context) ([]*model.ActivityPoints, error) {
	var rows []*model.ActivityPoints
	err := s.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("activity_code, COUNT(*) AS entries, COALESCE(SUM(points), 0) AS points").
		Group("activity_code").
		Order("activity_code ASC").
		Scan(&rows).Error
	return rows, err
}

func (s *GormStore) RedemptionStats(ctx context.Context) ([]*model.RedemptionStat, error) {
	var rows []*model.RedemptionStat
	err := s.db.WithContext(ctx).
		Model(&model.Redemption{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(points_spent), 0) AS points").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	return rows, err
}

// LedgerSums 按用户ID分批返回账户余额和流水汇总，单条语句内读到的是同一个快照
func (s *GormStore) LedgerSums(ctx context.Context, afterUserID int64, limit int) ([]*model.LedgerSum, error) {
	var rows []*model.LedgerSum
	err := s.db.WithContext(ctx).
		Table("points_account AS a").
		Select(`a.user_id AS user_id, a.balance AS balance, a.total_earned AS total_earned,
			COALESCE(SUM(l.points), 0) AS sum_points,
			COALESCE(SUM(CASE WHEN l.points > 0 THEN l.points ELSE 0 END), 0) AS sum_positive`).
		Joins("LEFT JOIN points_ledger_entry AS l ON l.user_id = a.user_id").
		Where("a.user_id > ?", afterUserID).
		Group("a.user_id, a.balance, a.total_earned").
		Order("a.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
