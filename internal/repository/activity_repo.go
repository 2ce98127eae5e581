package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func getActivity(ctx context.Context, db *gorm.DB, code string, forUpdate bool) (*model.PointActivity, error) {
	var activity model.PointActivity
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("activity_code = ?", code).First(&activity).Error
	if err != nil {
		return nil, translate(err, ErrActivityNotFound)
	}
	return &activity, nil
}

func (s *GormStore) GetActivity(ctx context.Context, code string) (*model.PointActivity, error) {
	return getActivity(ctx, s.db, code, false)
}

func (t *gormTx) GetActivity(ctx context.Context, code string) (*model.PointActivity, error) {
	return getActivity(ctx, t.db, code, false)
}

func (t *gormTx) GetActivityForUpdate(ctx context.Context, code string) (*model.PointActivity, error) {
	return getActivity(ctx, t.db, code, true)
}

func (t *gormTx) CreateActivity(ctx context.Context, activity *model.PointActivity) error {
	return translate(t.db.WithContext(ctx).Create(activity).Error, nil)
}

func (t *gormTx) SaveActivity(ctx context.Context, activity *model.PointActivity) error {
	return t.db.WithContext(ctx).
		Model(&model.PointActivity{}).
		Where("id = ?", activity.ID).
		Updates(map[string]interface{}{
			"name":        activity.Name,
			"description": activity.Description,
			"base_points": activity.BasePoints,
			"is_active":   activity.IsActive,
		}).Error
}

func (s *GormStore) ListActivities(ctx context.Context) ([]*model.PointActivity, error) {
	var activities []*model.PointActivity
	err := s.db.WithContext(ctx).Order("activity_code ASC").Find(&activities).Error
	return activities, err
}

// EnsureActivities 补齐默认活动，已存在的活动保持管理员的配置不变
func (s *GormStore) EnsureActivities(ctx context.Context, activities []*model.PointActivity) error {
	for _, a := range activities {
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "activity_code"}},
				DoNothing: true,
			}).
			Create(a).Error
		if err != nil {
			return err
		}
	}
	return nil
}
