package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (t *gormTx) CreateRedemption(ctx context.Context, redemption *model.Redemption) error {
	return translate(t.db.WithContext(ctx).Create(redemption).Error, nil)
}

func getRedemption(ctx context.Context, db *gorm.DB, redemptionNo string, forUpdate bool) (*model.Redemption, error) {
	var redemption model.Redemption
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("redemption_no = ?", redemptionNo).First(&redemption).Error
	if err != nil {
		return nil, translate(err, ErrRedemptionNotFound)
	}
	return &redemption, nil
}

func (s *GormStore) GetRedemption(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	return getRedemption(ctx, s.db, redemptionNo, false)
}

func (t *gormTx) GetRedemptionForUpdate(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	return getRedemption(ctx, t.db, redemptionNo, true)
}

func (t *gormTx) SaveRedemption(ctx context.Context, redemption *model.Redemption) error {
	return t.db.WithContext(ctx).
		Model(&model.Redemption{}).
		Where("id = ?", redemption.ID).
		Updates(map[string]interface{}{
			"status":     redemption.Status,
			"admin_note": redemption.AdminNote,
		}).Error
}

func (s *GormStore) ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]*model.Redemption, int64, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	var redemptions []*model.Redemption
	var total int64

	query := s.db.WithContext(ctx).Model(&model.Redemption{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.RewardID > 0 {
		query = query.Where("reward_id = ?", filter.RewardID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at < ?", *filter.DateTo)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&redemptions).Error

	return redemptions, total, err
}
