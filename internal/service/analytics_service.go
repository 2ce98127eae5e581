package service

import (
	"context"
	"log"

	"pointsystem/internal/apperr"
	"pointsystem/internal/auth"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

const reconcileBatchSize = 500

type AnalyticsService struct {
	store repository.Store
}

func NewAnalyticsService(store repository.Store) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// PointsAnalytics 管理端积分概览
type PointsAnalytics struct {
	Accounts           int64                   `json:"accounts"`
	TotalEarned        int64                   `json:"total_earned"`
	OutstandingBalance int64                   `json:"outstanding_balance"`
	TotalRedeemed      int64                   `json:"total_redeemed"`
	ActiveRewards      int                     `json:"active_rewards"`
	OutOfStockRewards  int                     `json:"out_of_stock_rewards"`
	ByActivity         []*model.ActivityPoints `json:"by_activity"`
	Redemptions        []*model.RedemptionStat `json:"redemptions"`
}

func (s *AnalyticsService) GetPointsAnalytics(ctx context.Context, admin *auth.Admin) (*PointsAnalytics, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}

	totals, err := s.store.SumAccounts(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byActivity, err := s.store.SumPointsByActivity(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	stats, err := s.store.RedemptionStats(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	rewards, err := s.store.ListRewards(ctx, true)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	result := &PointsAnalytics{
		Accounts:           totals.Accounts,
		TotalEarned:        totals.TotalEarned,
		OutstandingBalance: totals.TotalBalance,
		ByActivity:         byActivity,
		Redemptions:        stats,
	}
	for _, a := range byActivity {
		if a.ActivityCode == model.ActivityRedemption {
			result.TotalRedeemed = -a.Points
		}
	}
	for _, r := range rewards {
		result.ActiveRewards++
		if r.StockRemaining <= 0 {
			result.OutOfStockRewards++
		}
	}
	return result, nil
}

// Mismatch 账户和流水对不上的记录
type Mismatch struct {
	UserID      int64 `json:"user_id"`
	Balance     int64 `json:"balance"`
	LedgerSum   int64 `json:"ledger_sum"`
	TotalEarned int64 `json:"total_earned"`
	EarnedSum   int64 `json:"earned_sum"`
}

type ReconcileReport struct {
	Checked    int         `json:"checked"`
	Mismatches []*Mismatch `json:"mismatches"`
}

// Reconcile 逐个账户核对 余额 = 流水合计、累计获得 = 正向流水合计
// 只报告不修复，修复需要人工确认
func (s *AnalyticsService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{Mismatches: []*Mismatch{}}
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := s.store.LedgerSums(ctx, after, reconcileBatchSize)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		for _, r := range rows {
			report.Checked++
			if r.Balance != r.SumPoints || r.TotalEarned != r.SumPositive {
				report.Mismatches = append(report.Mismatches, &Mismatch{
					UserID:      r.UserID,
					Balance:     r.Balance,
					LedgerSum:   r.SumPoints,
					TotalEarned: r.TotalEarned,
					EarnedSum:   r.SumPositive,
				})
				log.Printf("[Reconcile] 账户不平: userID=%d, balance=%d, ledger=%d, earned=%d, positive=%d",
					r.UserID, r.Balance, r.SumPoints, r.TotalEarned, r.SumPositive)
			}
		}
		if len(rows) < reconcileBatchSize {
			break
		}
		after = rows[len(rows)-1].UserID
	}
	return report, nil
}

func (s *AnalyticsService) ReconcileNow(ctx context.Context, admin *auth.Admin) (*ReconcileReport, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	log.Printf("[Reconcile] 管理员手动对账: admin=%d", admin.UserID())
	return s.Reconcile(ctx)
}
