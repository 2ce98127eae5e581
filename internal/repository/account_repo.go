package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func getAccount(ctx context.Context, db *gorm.DB, userID int64, forUpdate bool) (*model.PointsAccount, error) {
	var account model.PointsAccount
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, translate(err, ErrAccountNotFound)
	}
	return &account, nil
}

func (s *GormStore) GetAccount(ctx context.Context, userID int64) (*model.PointsAccount, error) {
	return getAccount(ctx, s.db, userID, false)
}

func (t *gormTx) GetAccountForUpdate(ctx context.Context, userID int64) (*model.PointsAccount, error) {
	return getAccount(ctx, t.db, userID, true)
}

// CreateAccount 并发首次发放时只会有一个插入成功，其余忽略冲突后再加锁读取
func (t *gormTx) CreateAccount(ctx context.Context, account *model.PointsAccount) error {
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(account).Error
}

func (t *gormTx) SaveAccount(ctx context.Context, account *model.PointsAccount) error {
	result := t.db.WithContext(ctx).
		Model(&model.PointsAccount{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"balance":            account.Balance,
			"total_earned":       account.TotalEarned,
			"current_streak":     account.CurrentStreak,
			"longest_streak":     account.LongestStreak,
			"last_check_in_date": account.LastCheckInDate,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	account.Version++
	return nil
}

func (s *GormStore) GetUserNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var users []model.User
	err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
