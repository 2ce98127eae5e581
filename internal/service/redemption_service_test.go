package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/model"
)

func TestRedeemInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 100)
	reward := env.newReward(t, "Headphones", 150, 3, true)

	_, err := env.redemptions.Redeem(ctx, 1, reward.ID)
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("Redeem() error = %v, want insufficient balance", err)
	}

	if got := env.balance(t, 1); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	stored, _ := env.store.GetReward(ctx, reward.ID)
	if stored.StockRemaining != 3 {
		t.Errorf("stock = %d, want 3", stored.StockRemaining)
	}
	list, total, _ := env.redemptions.ListUserRedemptions(ctx, 1, 1, 10)
	if total != 0 || len(list) != 0 {
		t.Errorf("redemptions = %d, want none", total)
	}
}

func TestRedeemSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 200)
	reward := env.newReward(t, "Coffee Voucher", 50, 3, true)

	res, err := env.redemptions.Redeem(ctx, 1, reward.ID)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if !res.Success || res.Balance != 150 || res.StockRemaining != 2 || res.PointsSpent != 50 {
		t.Errorf("result = %+v", res)
	}

	stored, _ := env.store.GetReward(ctx, reward.ID)
	if stored.StockRemaining != 2 {
		t.Errorf("stock = %d, want 2", stored.StockRemaining)
	}

	list, total, err := env.redemptions.ListUserRedemptions(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("ListUserRedemptions() error = %v", err)
	}
	if total != 1 || list[0].Status != model.RedemptionStatusCompleted || list[0].RedemptionNo != res.RedemptionNo {
		t.Fatalf("redemptions = %+v", list)
	}

	var debit *model.LedgerEntry
	for _, e := range env.store.Ledger(1) {
		if e.ActivityCode == model.ActivityRedemption {
			e := e
			debit = &e
		}
	}
	if debit == nil || debit.Points != -50 || debit.ReferenceID != res.RedemptionNo || debit.BalanceAfter != 150 {
		t.Errorf("debit entry = %+v", debit)
	}

	points, _ := env.accounts.GetUserPoints(ctx, 1)
	if points.TotalEarned != 200 {
		t.Errorf("total earned = %d, want 200", points.TotalEarned)
	}
}

func TestRedeemRejectsUnavailableReward(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 100)
	empty := env.newReward(t, "Empty", 10, 0, true)
	inactive := env.newReward(t, "Retired", 10, 5, false)

	tests := []struct {
		name     string
		rewardID int64
		want     error
	}{
		{"out of stock", empty.ID, apperr.ErrOutOfStock},
		{"inactive", inactive.ID, apperr.ErrRewardInactive},
		{"missing", 999999, apperr.ErrRewardNotFound},
		{"invalid id", 0, apperr.ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.redemptions.Redeem(ctx, 1, tt.rewardID); !errors.Is(err, tt.want) {
				t.Errorf("Redeem() error = %v, want %v", err, tt.want)
			}
		})
	}
	if got := env.balance(t, 1); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
}

func TestRedeemWithoutAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	reward := env.newReward(t, "Pen", 10, 5, true)

	if _, err := env.redemptions.Redeem(context.Background(), 42, reward.ID); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Errorf("Redeem() error = %v, want insufficient balance", err)
	}
}

func TestConcurrentRedeemLastItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	const users = 10
	for u := int64(1); u <= users; u++ {
		env.fund(t, u, 100)
	}
	reward := env.newReward(t, "Last One", 50, 1, true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := env.redemptions.Redeem(ctx, userID, reward.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				others = append(others, err)
			}
		}(u)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
	for _, err := range others {
		if !errors.Is(err, apperr.ErrOutOfStock) {
			t.Errorf("losing redeem error = %v, want out of stock", err)
		}
	}
	stored, _ := env.store.GetReward(ctx, reward.ID)
	if stored.StockRemaining != 0 {
		t.Errorf("stock = %d, want 0", stored.StockRemaining)
	}
}

func TestConcurrentRedeemSameUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 100)
	reward := env.newReward(t, "Snack", 30, 10, true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.redemptions.Redeem(ctx, 1, reward.ID)
			if err != nil && !errors.Is(err, apperr.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("successes = %d, want 3", successes)
	}
	if got := env.balance(t, 1); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
	stored, _ := env.store.GetReward(ctx, reward.ID)
	if stored.StockRemaining != 7 {
		t.Errorf("stock = %d, want 7", stored.StockRemaining)
	}
}

func TestConcurrentAccrueAndRedeem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 100)
	reward := env.newReward(t, "Sticker", 10, 100, true)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		redeemed int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := env.accrual.Accrue(ctx, &AccrueRequest{
				UserID:       1,
				ActivityCode: fundActivity,
				ReferenceID:  fmt.Sprintf("concurrent-%d", i),
			})
			if err != nil {
				t.Errorf("Accrue() error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := env.redemptions.Redeem(ctx, 1, reward.ID); err == nil {
				mu.Lock()
				redeemed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	points, _ := env.accounts.GetUserPoints(ctx, 1)
	if points.Balance < 0 {
		t.Fatalf("balance went negative: %d", points.Balance)
	}
	if points.Balance != env.ledgerSum(1) {
		t.Errorf("balance %d != ledger sum %d", points.Balance, env.ledgerSum(1))
	}
	if points.TotalEarned != 100+20*50 {
		t.Errorf("total earned = %d, want %d", points.TotalEarned, 100+20*50)
	}
	stored, _ := env.store.GetReward(ctx, reward.ID)
	if stored.StockRemaining+redeemed != 100 {
		t.Errorf("stock %d + redeemed %d != 100", stored.StockRemaining, redeemed)
	}

	report, err := env.analytics.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.Mismatches) != 0 {
		t.Errorf("mismatches = %+v", report.Mismatches)
	}
}

func TestGetRedemptionsFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 100)
	env.fund(t, 2, 100)
	mug := env.newReward(t, "Mug", 20, 10, true)
	pen := env.newReward(t, "Pen", 10, 10, true)

	env.clock.Set(day0)
	if _, err := env.redemptions.Redeem(ctx, 1, mug.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Set(day0.AddDate(0, 0, 1))
	if _, err := env.redemptions.Redeem(ctx, 2, pen.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Set(day0.AddDate(0, 0, 2))
	if _, err := env.redemptions.Redeem(ctx, 1, pen.ID); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.redemptions.GetRedemptions(ctx, nil, model.RedemptionFilter{}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("GetRedemptions(nil) error = %v, want unauthorized", err)
	}

	from := day0.AddDate(0, 0, 1)
	to := day0.AddDate(0, 0, 2)
	tests := []struct {
		name   string
		filter model.RedemptionFilter
		want   int64
	}{
		{"all", model.RedemptionFilter{}, 3},
		{"by user", model.RedemptionFilter{UserID: 1}, 2},
		{"by reward", model.RedemptionFilter{RewardID: pen.ID}, 2},
		{"by status", model.RedemptionFilter{Status: "completed"}, 3},
		{"by pending", model.RedemptionFilter{Status: model.RedemptionStatusPending}, 0},
		{"date range", model.RedemptionFilter{DateFrom: &from, DateTo: &to}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := env.redemptions.GetRedemptions(ctx, env.admin, tt.filter)
			if err != nil {
				t.Fatalf("GetRedemptions() error = %v", err)
			}
			if total != tt.want {
				t.Errorf("total = %d, want %d", total, tt.want)
			}
		})
	}

	if _, _, err := env.redemptions.GetRedemptions(ctx, env.admin, model.RedemptionFilter{Status: "SHIPPED"}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("unknown status: error = %v, want invalid param", err)
	}
	if _, _, err := env.redemptions.GetRedemptions(ctx, env.admin, model.RedemptionFilter{DateFrom: &to, DateTo: &from}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("inverted range: error = %v, want invalid param", err)
	}
}

func TestAnnotateRedemption(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fund(t, 1, 50)
	reward := env.newReward(t, "Badge", 10, 1, true)
	res, err := env.redemptions.Redeem(ctx, 1, reward.ID)
	if err != nil {
		t.Fatal(err)
	}

	env.clock.Set(day0.Add(time.Hour))
	updated, err := env.redemptions.AnnotateRedemption(ctx, env.admin, res.RedemptionNo, "handed over at front desk")
	if err != nil {
		t.Fatalf("AnnotateRedemption() error = %v", err)
	}
	if updated.AdminNote != "handed over at front desk" || updated.Status != model.RedemptionStatusCompleted {
		t.Errorf("updated = %+v", updated)
	}

	stored, _ := env.store.GetRedemption(ctx, res.RedemptionNo)
	if stored.AdminNote != "handed over at front desk" || stored.PointsSpent != 10 {
		t.Errorf("stored = %+v", stored)
	}

	if _, err := env.redemptions.AnnotateRedemption(ctx, env.admin, "RDM-missing", "x"); !errors.Is(err, apperr.ErrRedemptionNotFound) {
		t.Errorf("missing redemption: error = %v", err)
	}
	if _, err := env.redemptions.AnnotateRedemption(ctx, nil, res.RedemptionNo, "x"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("nil admin: error = %v", err)
	}
}
