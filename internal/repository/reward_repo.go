package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func getReward(ctx context.Context, db *gorm.DB, id int64, forUpdate bool) (*model.Reward, error) {
	var reward model.Reward
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ?", id).First(&reward).Error
	if err != nil {
		return nil, translate(err, ErrRewardNotFound)
	}
	return &reward, nil
}

func (s *GormStore) GetReward(ctx context.Context, id int64) (*model.Reward, error) {
	return getReward(ctx, s.db, id, false)
}

func (t *gormTx) GetRewardForUpdate(ctx context.Context, id int64) (*model.Reward, error) {
	return getReward(ctx, t.db, id, true)
}

func (t *gormTx) CreateReward(ctx context.Context, reward *model.Reward) error {
	return translate(t.db.WithContext(ctx).Create(reward).Error, nil)
}

// SaveReward 库存条件 stock_remaining >= 0 由调用方保证，version 防止锁外的并发覆盖
func (t *gormTx) SaveReward(ctx context.Context, reward *model.Reward) error {
	result := t.db.WithContext(ctx).
		Model(&model.Reward{}).
		Where("id = ? AND version = ?", reward.ID, reward.Version).
		Updates(map[string]interface{}{
			"name":            reward.Name,
			"slug":            reward.Slug,
			"description":     reward.Description,
			"points_cost":     reward.PointsCost,
			"stock_remaining": reward.StockRemaining,
			"is_active":       reward.IsActive,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	reward.Version++
	return nil
}

func (s *GormStore) ListRewards(ctx context.Context, onlyActive bool) ([]*model.Reward, error) {
	var rewards []*model.Reward
	q := s.db.WithContext(ctx).Model(&model.Reward{})
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("points_cost ASC, id ASC").Find(&rewards).Error
	return rewards, err
}
