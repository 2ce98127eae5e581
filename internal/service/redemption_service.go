package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/auth"
	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/pkg/idgen"
)

// RedemptionService 积分兑换
//
// 兑换必须保证：
// 1. 原子性：库存扣减、余额扣减、扣减流水、兑换记录同时成功或同时失败
// 2. 并发安全：奖品行和账户行都加排他锁，加锁顺序固定为先奖品后账户
// 3. 失败不落库：校验失败直接回滚，不产生 PENDING 记录
type RedemptionService struct {
	store  repository.Store
	locker lock.Locker
	cfg    *config.Config
	now    func() time.Time
}

func NewRedemptionService(store repository.Store, locker lock.Locker, cfg *config.Config) *RedemptionService {
	return &RedemptionService{
		store:  store,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

type RedeemResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RedemptionNo   string `json:"redemption_no"`
	RewardID       int64  `json:"reward_id"`
	PointsSpent    int64  `json:"points_spent"`
	Balance        int64  `json:"balance"`
	StockRemaining int64  `json:"stock_remaining"`
}

// Redeem 用积分兑换奖品
// 失败时返回 apperr：RewardNotFound / RewardInactive / OutOfStock / InsufficientBalance
func (s *RedemptionService) Redeem(ctx context.Context, userID, rewardID int64) (*RedeemResult, error) {
	if userID <= 0 {
		return nil, apperr.Validation("user_id 必须大于0")
	}
	if rewardID <= 0 {
		return nil, apperr.Validation("reward_id 必须大于0")
	}

	var result *RedeemResult
	err := withUserLock(ctx, s.locker, s.cfg.Business.LockTimeout(), userID, func() error {
		return s.store.Transaction(ctx, func(tx repository.Tx) error {
			var err error
			result, err = s.redeemInTx(ctx, tx, userID, rewardID)
			return err
		})
	})
	if err != nil {
		err = storeErr(err)
		if apperr.KindOf(err) == apperr.KindConflict || apperr.KindOf(err) == apperr.KindNotFound {
			log.Printf("兑换失败: userID=%d, rewardID=%d, reason=%s", userID, rewardID, apperr.Message(err))
		} else {
			log.Printf("兑换异常: userID=%d, rewardID=%d, err=%v", userID, rewardID, err)
		}
		return nil, err
	}

	log.Printf("兑换成功: redemptionNo=%s, userID=%d, rewardID=%d, points=%d",
		result.RedemptionNo, userID, rewardID, result.PointsSpent)
	return result, nil
}

func (s *RedemptionService) redeemInTx(ctx context.Context, tx repository.Tx, userID, rewardID int64) (*RedeemResult, error) {
	reward, err := tx.GetRewardForUpdate(ctx, rewardID)
	if err != nil {
		if errors.Is(err, repository.ErrRewardNotFound) {
			return nil, apperr.ErrRewardNotFound
		}
		return nil, fmt.Errorf("查询奖品失败: %w", err)
	}
	if !reward.IsActive {
		return nil, apperr.ErrRewardInactive
	}
	if reward.StockRemaining <= 0 {
		return nil, apperr.ErrOutOfStock
	}

	account, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperr.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("查询积分账户失败: %w", err)
	}
	if account.Balance < reward.PointsCost {
		return nil, apperr.ErrInsufficientBalance
	}

	now := s.now()
	redemption := &model.Redemption{
		RedemptionNo: idgen.GenerateRedemptionNo(),
		UserID:       userID,
		RewardID:     reward.ID,
		RewardName:   reward.Name,
		PointsSpent:  reward.PointsCost,
		Status:       model.RedemptionStatusPending,
		CreatedAt:    now,
	}

	reward.StockRemaining--
	if err := tx.SaveReward(ctx, reward); err != nil {
		return nil, fmt.Errorf("扣减库存失败: %w", err)
	}

	account.Balance -= reward.PointsCost
	if err := tx.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("扣减积分失败: %w", err)
	}

	entry := &model.LedgerEntry{
		EntryNo:      idgen.GenerateEntryNo(),
		UserID:       userID,
		ActivityCode: model.ActivityRedemption,
		ReferenceID:  redemption.RedemptionNo,
		Points:       -reward.PointsCost,
		BalanceAfter: account.Balance,
		Remark:       fmt.Sprintf("兑换-%s", reward.Name),
		CreatedAt:    now,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, fmt.Errorf("记录积分流水失败: %w", err)
	}

	if !model.CanRedemptionTransitionTo(redemption.Status, model.RedemptionStatusCompleted) {
		return nil, fmt.Errorf("兑换单状态不合法: %s", redemption.Status)
	}
	redemption.Status = model.RedemptionStatusCompleted
	if err := tx.CreateRedemption(ctx, redemption); err != nil {
		return nil, fmt.Errorf("创建兑换记录失败: %w", err)
	}

	msg := newOutboxMessage(s.cfg, model.EventRewardRedeemed, redemption.RedemptionNo, map[string]interface{}{
		"redemption_no": redemption.RedemptionNo,
		"user_id":       userID,
		"reward_id":     reward.ID,
		"reward_name":   reward.Name,
		"points_spent":  reward.PointsCost,
		"balance_after": account.Balance,
		"status":        redemption.Status,
		"redeemed_at":   now.Format(time.RFC3339),
	})
	if msg != nil {
		if err := tx.CreateOutbox(ctx, msg); err != nil {
			return nil, fmt.Errorf("写入消息失败: %w", err)
		}
	}

	return &RedeemResult{
		Success:        true,
		Message:        "兑换成功",
		RedemptionNo:   redemption.RedemptionNo,
		RewardID:       reward.ID,
		PointsSpent:    reward.PointsCost,
		Balance:        account.Balance,
		StockRemaining: reward.StockRemaining,
	}, nil
}

// ListUserRedemptions 用户自己的兑换记录
func (s *RedemptionService) ListUserRedemptions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Redemption, int64, error) {
	if userID <= 0 {
		return nil, 0, apperr.Validation("user_id 必须大于0")
	}
	page, pageSize = normalizePage(page, pageSize)
	list, total, err := s.store.ListRedemptions(ctx, model.RedemptionFilter{UserID: userID, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return list, total, nil
}

// GetRedemptions 管理端兑换记录查询
func (s *RedemptionService) GetRedemptions(ctx context.Context, admin *auth.Admin, filter model.RedemptionFilter) ([]*model.Redemption, int64, error) {
	if err := auth.Require(admin); err != nil {
		return nil, 0, err
	}
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !model.IsValidRedemptionStatus(filter.Status) {
		return nil, 0, apperr.Validation("不支持的兑换状态: %s", filter.Status)
	}
	if filter.UserID < 0 || filter.RewardID < 0 {
		return nil, 0, apperr.Validation("user_id 和 reward_id 不能为负数")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && !filter.DateFrom.Before(*filter.DateTo) {
		return nil, 0, apperr.Validation("date_from 必须早于 date_to")
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)

	list, total, err := s.store.ListRedemptions(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return list, total, nil
}

// AnnotateRedemption 管理员备注，兑换记录其余字段保持不变
func (s *RedemptionService) AnnotateRedemption(ctx context.Context, admin *auth.Admin, redemptionNo, note string) (*model.Redemption, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	redemptionNo = strings.TrimSpace(redemptionNo)
	if redemptionNo == "" {
		return nil, apperr.Validation("redemption_no 不能为空")
	}
	if len([]rune(note)) > 512 {
		return nil, apperr.Validation("备注不能超过512个字符")
	}

	var updated *model.Redemption
	err := s.store.Transaction(ctx, func(tx repository.Tx) error {
		redemption, err := tx.GetRedemptionForUpdate(ctx, redemptionNo)
		if err != nil {
			if errors.Is(err, repository.ErrRedemptionNotFound) {
				return apperr.ErrRedemptionNotFound
			}
			return err
		}
		redemption.AdminNote = note
		if err := tx.SaveRedemption(ctx, redemption); err != nil {
			return err
		}
		updated = redemption
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Printf("兑换记录备注更新: redemptionNo=%s, admin=%d", redemptionNo, admin.UserID())
	return updated, nil
}
