package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"pointsystem/internal/apperr"
	"pointsystem/internal/auth"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"

	"github.com/gosimple/slug"
)

// CatalogService 积分活动和奖品配置，写操作仅管理员可用，后写覆盖先写
type CatalogService struct {
	store repository.Store
}

func NewCatalogService(store repository.Store) *CatalogService {
	return &CatalogService{store: store}
}

// EnsureDefaults 启动时补齐默认活动
func (s *CatalogService) EnsureDefaults(ctx context.Context) error {
	if err := s.store.EnsureActivities(ctx, model.DefaultActivities()); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ============================================================
// 积分活动
// ============================================================

type ActivityChange struct {
	Previous *model.PointActivity `json:"previous"`
	Current  *model.PointActivity `json:"current"`
}

type CreateActivityRequest struct {
	ActivityCode string `json:"activity_code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	BasePoints   int64  `json:"base_points"`
	IsActive     bool   `json:"is_active"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CatalogService) GetPointActivities(ctx context.Context, admin *auth.Admin) ([]*model.PointActivity, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	activities, err := s.store.ListActivities(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return activities, nil
}

func (s *CatalogService) CreatePointActivity(ctx context.Context, admin *auth.Admin, req *CreateActivityRequest) (*model.PointActivity, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	code := normalizeCode(req.ActivityCode)
	if code == "" {
		return nil, apperr.Validation("activity_code 不能为空")
	}
	if code == model.ActivityRedemption {
		return nil, apperr.Validation("%s 为系统保留活动", model.ActivityRedemption)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name 不能为空")
	}
	if req.BasePoints < 0 {
		return nil, apperr.Validation("base_points 不能为负数")
	}

	activity := &model.PointActivity{
		ActivityCode: code,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		BasePoints:   req.BasePoints,
		IsActive:     req.IsActive,
	}
	err := s.store.Transaction(ctx, func(tx repository.Tx) error {
		if err := tx.CreateActivity(ctx, activity); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return apperr.ErrActivityExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Printf("积分活动创建: code=%s, points=%d, active=%v, admin=%d", code, activity.BasePoints, activity.IsActive, admin.UserID())
	return activity, nil
}

// UpdatePointActivity 修改活动分值和启用状态，只影响之后的发放
func (s *CatalogService) UpdatePointActivity(ctx context.Context, admin *auth.Admin, code string, basePoints int64, isActive bool) (*ActivityChange, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	if code == "" {
		return nil, apperr.Validation("activity_code 不能为空")
	}
	if basePoints < 0 {
		return nil, apperr.Validation("base_points 不能为负数")
	}

	var change *ActivityChange
	err := s.store.Transaction(ctx, func(tx repository.Tx) error {
		activity, err := tx.GetActivityForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrActivityNotFound) {
				return apperr.ErrUnknownActivity
			}
			return err
		}
		previous := *activity
		activity.BasePoints = basePoints
		activity.IsActive = isActive
		if err := tx.SaveActivity(ctx, activity); err != nil {
			return err
		}
		change = &ActivityChange{Previous: &previous, Current: activity}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Printf("积分活动更新: code=%s, points=%d->%d, active=%v->%v, admin=%d",
		code, change.Previous.BasePoints, change.Current.BasePoints,
		change.Previous.IsActive, change.Current.IsActive, admin.UserID())
	return change, nil
}

// ============================================================
// 奖品
// ============================================================

// RewardView 奖品列表项，已知用户时附带是否买得起
type RewardView struct {
	*model.Reward
	CanAfford *bool `json:"can_afford,omitempty"`
}

type CreateRewardRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	PointsCost     int64  `json:"points_cost" binding:"required"`
	StockRemaining int64  `json:"stock_remaining"`
	IsActive       bool   `json:"is_active"`
}

// UpdateRewardRequest 为 nil 的字段保持不变
type UpdateRewardRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	PointsCost     *int64  `json:"points_cost"`
	StockRemaining *int64  `json:"stock_remaining"`
	IsActive       *bool   `json:"is_active"`
}

type RewardChange struct {
	Previous *model.Reward `json:"previous"`
	Current  *model.Reward `json:"current"`
}

// GetAvailableRewards 上架且有库存的奖品，userID 为 0 表示匿名查询
func (s *CatalogService) GetAvailableRewards(ctx context.Context, userID int64) ([]*RewardView, error) {
	rewards, err := s.store.ListRewards(ctx, true)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var balance int64
	known := userID > 0
	if known {
		account, err := s.store.GetAccount(ctx, userID)
		switch {
		case err == nil:
			balance = account.Balance
		case errors.Is(err, repository.ErrAccountNotFound):
		default:
			return nil, apperr.Internal(err)
		}
	}

	views := make([]*RewardView, 0, len(rewards))
	for _, r := range rewards {
		if r.StockRemaining <= 0 {
			continue
		}
		view := &RewardView{Reward: r}
		if known {
			affordable := balance >= r.PointsCost
			view.CanAfford = &affordable
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *CatalogService) ListAllRewards(ctx context.Context, admin *auth.Admin) ([]*model.Reward, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	rewards, err := s.store.ListRewards(ctx, false)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rewards, nil
}

func (s *CatalogService) CreateReward(ctx context.Context, admin *auth.Admin, req *CreateRewardRequest) (*model.Reward, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name 不能为空")
	}
	if req.PointsCost <= 0 {
		return nil, apperr.Validation("points_cost 必须大于0")
	}
	if req.StockRemaining < 0 {
		return nil, apperr.Validation("stock_remaining 不能为负数")
	}

	reward := &model.Reward{
		Name:           name,
		Slug:           slug.Make(name),
		Description:    req.Description,
		PointsCost:     req.PointsCost,
		StockRemaining: req.StockRemaining,
		IsActive:       req.IsActive,
	}
	err := s.store.Transaction(ctx, func(tx repository.Tx) error {
		return tx.CreateReward(ctx, reward)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Printf("奖品创建: id=%d, name=%s, cost=%d, stock=%d, admin=%d", reward.ID, reward.Name, reward.PointsCost, reward.StockRemaining, admin.UserID())
	return reward, nil
}

// UpdateReward 在奖品行锁内修改，和兑换扣库存互斥
func (s *CatalogService) UpdateReward(ctx context.Context, admin *auth.Admin, id int64, req *UpdateRewardRequest) (*RewardChange, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, apperr.Validation("reward_id 必须大于0")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, apperr.Validation("name 不能为空")
	}
	if req.PointsCost != nil && *req.PointsCost <= 0 {
		return nil, apperr.Validation("points_cost 必须大于0")
	}
	if req.StockRemaining != nil && *req.StockRemaining < 0 {
		return nil, apperr.Validation("stock_remaining 不能为负数")
	}

	var change *RewardChange
	err := s.store.Transaction(ctx, func(tx repository.Tx) error {
		reward, err := tx.GetRewardForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrRewardNotFound) {
				return apperr.ErrRewardNotFound
			}
			return err
		}
		previous := *reward

		if req.Name != nil {
			reward.Name = strings.TrimSpace(*req.Name)
			reward.Slug = slug.Make(reward.Name)
		}
		if req.Description != nil {
			reward.Description = *req.Description
		}
		if req.PointsCost != nil {
			reward.PointsCost = *req.PointsCost
		}
		if req.StockRemaining != nil {
			reward.StockRemaining = *req.StockRemaining
		}
		if req.IsActive != nil {
			reward.IsActive = *req.IsActive
		}

		if err := tx.SaveReward(ctx, reward); err != nil {
			return err
		}
		change = &RewardChange{Previous: &previous, Current: reward}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Printf("奖品更新: id=%d, cost=%d->%d, stock=%d->%d, active=%v->%v, admin=%d",
		id, change.Previous.PointsCost, change.Current.PointsCost,
		change.Previous.StockRemaining, change.Current.StockRemaining,
		change.Previous.IsActive, change.Current.IsActive, admin.UserID())
	return change, nil
}
