package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/internal/repository/memory"
)

func TestAccrueIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	req := func() *AccrueRequest {
		return &AccrueRequest{UserID: 1, ActivityCode: model.ActivityCheckIn, ReferenceID: "att-1", OccurredAt: day0}
	}

	first, err := env.accrual.Accrue(ctx, req())
	if err != nil {
		t.Fatalf("Accrue() error = %v", err)
	}
	if first.Duplicate || first.Entry.Points != 10 {
		t.Fatalf("first accrual = %+v, want 10 points", first.Entry)
	}

	second, err := env.accrual.Accrue(ctx, req())
	if err != nil {
		t.Fatalf("second Accrue() error = %v", err)
	}
	if !second.Duplicate {
		t.Error("second accrual should be reported as duplicate")
	}
	if second.Entry.EntryNo != first.Entry.EntryNo {
		t.Errorf("duplicate returned entry %s, want %s", second.Entry.EntryNo, first.Entry.EntryNo)
	}
	if got := env.balance(t, 1); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
	if n := len(env.store.Ledger(1)); n != 1 {
		t.Errorf("ledger entries = %d, want 1", n)
	}
}

func TestAccrueRejectsUnusableActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		code string
		want error
	}{
		{"unknown", "NOT_A_CODE", apperr.ErrUnknownActivity},
		{"inactive", model.ActivityManualBonus, apperr.ErrInactiveActivity},
		{"reserved", model.ActivityRedemption, apperr.ErrInvalidParam},
		{"empty", "", apperr.ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 7, ActivityCode: tt.code, ReferenceID: "ref-" + tt.name})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Accrue() error = %v, want %v", err, tt.want)
			}
		})
	}

	if n := len(env.store.Ledger(7)); n != 0 {
		t.Errorf("ledger entries = %d, want 0", n)
	}
	if _, err := env.store.GetAccount(ctx, 7); !errors.Is(err, repository.ErrAccountNotFound) {
		t.Errorf("failed accrual left an account behind: err = %v", err)
	}
}

func TestAccrueValidatesRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 0, ActivityCode: model.ActivityCheckIn, ReferenceID: "x"}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("zero user: error = %v, want invalid param", err)
	}
	if _, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 1, ActivityCode: model.ActivityCheckIn, ReferenceID: "  "}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("blank reference: error = %v, want invalid param", err)
	}
}

func TestCheckInStreak(t *testing.T) {
	env := newTestEnv(t, nil)

	env.checkIn(t, 1, "d0", day0)
	env.checkIn(t, 1, "d1", day0.AddDate(0, 0, 1))
	res := env.checkIn(t, 1, "d2", day0.AddDate(0, 0, 2))
	if res.Account.CurrentStreak != 3 || res.Account.LongestStreak != 3 {
		t.Fatalf("after 3 consecutive days streak = %d/%d, want 3/3", res.Account.CurrentStreak, res.Account.LongestStreak)
	}

	// 同一天再次打卡：积分照发，连续天数不变
	res = env.checkIn(t, 1, "d2-again", day0.AddDate(0, 0, 2).Add(2*time.Hour))
	if res.Account.CurrentStreak != 3 {
		t.Errorf("same-day check-in streak = %d, want 3", res.Account.CurrentStreak)
	}
	if res.Account.Balance != 40 {
		t.Errorf("balance = %d, want 40", res.Account.Balance)
	}

	res = env.checkIn(t, 1, "d7", day0.AddDate(0, 0, 7))
	if res.Account.CurrentStreak != 1 || res.Account.LongestStreak != 3 {
		t.Errorf("after gap streak = %d/%d, want 1/3", res.Account.CurrentStreak, res.Account.LongestStreak)
	}
}

func TestCheckInStreakResetAfterGap(t *testing.T) {
	env := newTestEnv(t, nil)

	env.checkIn(t, 2, "a", day0)
	res := env.checkIn(t, 2, "b", day0.AddDate(0, 0, 5))
	if res.Account.CurrentStreak != 1 {
		t.Errorf("streak = %d, want 1", res.Account.CurrentStreak)
	}
}

func TestCheckOutDoesNotAffectStreak(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.accrual.RecordAttendance(ctx, &AttendanceEvent{UserID: 3, EventType: "check_out", Timestamp: day0, ReferenceID: "out-1"})
	if err != nil {
		t.Fatalf("RecordAttendance() error = %v", err)
	}
	if res.Entry.ActivityCode != model.ActivityCheckOut || res.Entry.Points != 5 {
		t.Errorf("entry = %s/%d, want CHECK_OUT/5", res.Entry.ActivityCode, res.Entry.Points)
	}
	if res.Account.CurrentStreak != 0 {
		t.Errorf("streak = %d, want 0", res.Account.CurrentStreak)
	}

	if _, err := env.accrual.RecordAttendance(ctx, &AttendanceEvent{UserID: 3, EventType: "LEAVE", ReferenceID: "l-1"}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("unknown event type: error = %v, want invalid param", err)
	}
}

func TestStreakBonus(t *testing.T) {
	cfg := testConfig()
	cfg.Business.StreakBonusInterval = 3
	env := newTestEnv(t, cfg)

	env.checkIn(t, 1, "d0", day0)
	env.checkIn(t, 1, "d1", day0.AddDate(0, 0, 1))
	res := env.checkIn(t, 1, "d2", day0.AddDate(0, 0, 2))

	if res.BonusEntry == nil {
		t.Fatal("expected a streak bonus on the third day")
	}
	if res.BonusEntry.ActivityCode != model.ActivityStreakBonus || res.BonusEntry.Points != 20 {
		t.Errorf("bonus = %s/%d, want STREAK_BONUS/20", res.BonusEntry.ActivityCode, res.BonusEntry.Points)
	}
	if res.BonusEntry.ReferenceID != "streak:d2" {
		t.Errorf("bonus reference = %s, want streak:d2", res.BonusEntry.ReferenceID)
	}
	if res.Account.Balance != 50 || res.Account.TotalEarned != 50 {
		t.Errorf("balance/earned = %d/%d, want 50/50", res.Account.Balance, res.Account.TotalEarned)
	}
	if n := len(env.store.Ledger(1)); n != 4 {
		t.Errorf("ledger entries = %d, want 4", n)
	}

	// 同一天重复打卡不会再次触发奖励
	res = env.checkIn(t, 1, "d2-again", day0.AddDate(0, 0, 2).Add(time.Hour))
	if res.BonusEntry != nil {
		t.Error("same-day check-in must not award a second bonus")
	}
}

func TestStreakBonusSkippedWhenInactive(t *testing.T) {
	cfg := testConfig()
	cfg.Business.StreakBonusInterval = 2
	env := newTestEnv(t, cfg)
	if _, err := env.catalog.UpdatePointActivity(context.Background(), env.admin, model.ActivityStreakBonus, 20, false); err != nil {
		t.Fatalf("UpdatePointActivity() error = %v", err)
	}

	env.checkIn(t, 1, "d0", day0)
	res := env.checkIn(t, 1, "d1", day0.AddDate(0, 0, 1))
	if res.BonusEntry != nil {
		t.Error("inactive bonus activity must not credit points")
	}
	if res.Account.CurrentStreak != 2 {
		t.Errorf("streak = %d, want 2", res.Account.CurrentStreak)
	}
}

func TestBalanceMatchesLedger(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.fund(t, 1, 200)
	env.checkIn(t, 1, "c1", day0)
	reward := env.newReward(t, "Mug", 70, 5, true)
	if _, err := env.redemptions.Redeem(ctx, 1, reward.ID); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	points, err := env.accounts.GetUserPoints(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserPoints() error = %v", err)
	}
	if points.Balance != env.ledgerSum(1) {
		t.Errorf("balance %d != ledger sum %d", points.Balance, env.ledgerSum(1))
	}
	if points.Balance != 140 || points.TotalEarned != 210 {
		t.Errorf("balance/earned = %d/%d, want 140/210", points.Balance, points.TotalEarned)
	}
}

func TestAccrueWritesOutboxWhenKafkaEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic.PointsEvent = "points_event"
	env := newTestEnv(t, cfg)

	env.checkIn(t, 1, "c1", day0)
	if _, err := env.accrual.Accrue(context.Background(), &AccrueRequest{UserID: 1, ActivityCode: "NOPE", ReferenceID: "x"}); err == nil {
		t.Fatal("expected error for unknown activity")
	}

	msgs := env.store.Outbox()
	if len(msgs) != 1 {
		t.Fatalf("outbox messages = %d, want 1", len(msgs))
	}
	if msgs[0].EventType != model.EventPointsAccrued || msgs[0].Topic != "points_event" {
		t.Errorf("message = %s/%s", msgs[0].EventType, msgs[0].Topic)
	}
}

func TestAwardPointsRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	req := &AccrueRequest{UserID: 1, ActivityCode: fundActivity, ReferenceID: "award-1"}
	if _, err := env.accrual.AwardPoints(ctx, nil, req); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("AwardPoints(nil) error = %v, want unauthorized", err)
	}

	res, err := env.accrual.AwardPoints(ctx, env.admin, req)
	if err != nil {
		t.Fatalf("AwardPoints() error = %v", err)
	}
	if res.Entry.Points != 50 || res.Entry.Remark == "" {
		t.Errorf("entry = %+v", res.Entry)
	}
}

func TestAccrueNormalizesActivityCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 1, ActivityCode: " check_in ", ReferenceID: "att-1", OccurredAt: day0})
	if err != nil {
		t.Fatalf("Accrue() error = %v", err)
	}
	if res.Entry.ActivityCode != model.ActivityCheckIn || res.Entry.Points != 10 {
		t.Fatalf("entry = %+v, want CHECK_IN with 10 points", res.Entry)
	}

	again, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 1, ActivityCode: "CHECK_IN", ReferenceID: "att-1", OccurredAt: day0})
	if err != nil {
		t.Fatalf("second Accrue() error = %v", err)
	}
	if !again.Duplicate {
		t.Error("same reference with different code casing should be a duplicate")
	}

	if _, err := env.accrual.Accrue(ctx, &AccrueRequest{UserID: 1, ActivityCode: "reward_redemption", ReferenceID: "r-1"}); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("lower-case reserved code error = %v, want ErrInvalidParam", err)
	}
}

// staleLedgerStore 第一次事务的幂等检查读不到已提交的流水，和另一个实例并发写入同一来源时的情形一致
type staleLedgerStore struct {
	*memory.Store
	mu    sync.Mutex
	stale int
}

func (s *staleLedgerStore) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Tx) error {
		s.mu.Lock()
		stale := s.stale > 0
		if stale {
			s.stale--
		}
		s.mu.Unlock()
		if stale {
			return fn(staleLedgerTx{tx})
		}
		return fn(tx)
	})
}

type staleLedgerTx struct {
	repository.Tx
}

func (staleLedgerTx) GetLedgerByReference(ctx context.Context, userID int64, activityCode, referenceID string) (*model.LedgerEntry, error) {
	return nil, nil
}

func TestAccrueUniqueConflictReturnsExistingEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	req := func() *AccrueRequest {
		return &AccrueRequest{UserID: 1, ActivityCode: model.ActivityCheckIn, ReferenceID: "att-1", OccurredAt: day0}
	}

	first, err := env.accrual.Accrue(ctx, req())
	if err != nil {
		t.Fatalf("Accrue() error = %v", err)
	}

	store := &staleLedgerStore{Store: env.store, stale: 1}
	other := NewAccrualService(store, lock.NewLocalLocker(), env.cfg)
	other.now = env.clock.Now

	res, err := other.Accrue(ctx, req())
	if err != nil {
		t.Fatalf("Accrue() after unique conflict error = %v", err)
	}
	if !res.Duplicate || res.Entry.EntryNo != first.Entry.EntryNo {
		t.Fatalf("result = %+v, want duplicate of %s", res, first.Entry.EntryNo)
	}
	if store.stale != 0 {
		t.Errorf("stale transactions left = %d, want 0", store.stale)
	}
	if got := env.balance(t, 1); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
	if n := len(env.store.Ledger(1)); n != 1 {
		t.Errorf("ledger entries = %d, want 1", n)
	}
}
