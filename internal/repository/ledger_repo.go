package repository

import (
	"context"
	"time"

	"pointsystem/internal/model"
)

func (t *gormTx) GetLedgerByReference(ctx context.Context, userID int64, activityCode, referenceID string) (*model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND activity_code = ? AND reference_id = ?", userID, activityCode, referenceID).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (t *gormTx) AppendLedger(ctx context.Context, entry *model.LedgerEntry) error {
	return translate(t.db.WithContext(ctx).Create(entry).Error, nil)
}

func (s *GormStore) ListLedgerByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	var entries []*model.LedgerEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// Leaderboard since 为空时按累计获得积分排名，否则汇总窗口内的正向流水
// 同分按账户创建时间、再按用户ID升序，保证结果稳定
func (s *GormStore) Leaderboard(ctx context.Context, since *time.Time, limit, offset int) ([]*model.LeaderboardRow, error) {
	var rows []*model.LeaderboardRow

	if since == nil {
		err := s.db.WithContext(ctx).
			Model(&model.PointsAccount{}).
			Select("user_id, total_earned AS total_points, created_at AS account_created_at").
			Where("total_earned > 0").
			Order("total_earned DESC, created_at ASC, user_id ASC").
			Limit(limit).
			Offset(offset).
			Scan(&rows).Error
		return rows, err
	}

	err := s.db.WithContext(ctx).
		Table("points_ledger_entry AS l").
		Select("l.user_id AS user_id, SUM(l.points) AS total_points, a.created_at AS account_created_at").
		Joins("JOIN points_account AS a ON a.user_id = l.user_id").
		Where("l.points > 0 AND l.created_at >= ?", *since).
		Group("l.user_id, a.created_at").
		Order("total_points DESC, a.created_at ASC, l.user_id ASC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}
