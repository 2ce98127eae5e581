package service

import (
	"context"
	"errors"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/config"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/internal/streak"
)

type AccountService struct {
	store repository.Store
	loc   *time.Location
	now   func() time.Time
}

func NewAccountService(store repository.Store, cfg *config.Config) *AccountService {
	return &AccountService{
		store: store,
		loc:   businessLocation(cfg),
		now:   time.Now,
	}
}

// UserPoints 用户积分概览，没有账户时各项为 0
type UserPoints struct {
	UserID          int64      `json:"user_id"`
	Balance         int64      `json:"balance"`
	TotalEarned     int64      `json:"total_earned"`
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastCheckInDate *time.Time `json:"last_check_in_date,omitempty"`
}

// GetUserPoints 查询积分和连续打卡
// 连续打卡已经中断（最近一次打卡早于昨天）时 current_streak 返回 0
func (s *AccountService) GetUserPoints(ctx context.Context, userID int64) (*UserPoints, error) {
	if userID <= 0 {
		return nil, apperr.Validation("user_id 必须大于0")
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &UserPoints{UserID: userID}, nil
		}
		return nil, apperr.Internal(err)
	}

	return &UserPoints{
		UserID:          userID,
		Balance:         account.Balance,
		TotalEarned:     account.TotalEarned,
		CurrentStreak:   streak.Effective(accountStreak(account), s.now(), s.loc),
		LongestStreak:   account.LongestStreak,
		LastCheckInDate: account.LastCheckInDate,
	}, nil
}

// GetLedger 积分流水，按时间倒序分页
func (s *AccountService) GetLedger(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if userID <= 0 {
		return nil, 0, apperr.Validation("user_id 必须大于0")
	}
	page, pageSize = normalizePage(page, pageSize)

	entries, total, err := s.store.ListLedgerByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return entries, total, nil
}
