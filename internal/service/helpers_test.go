package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pointsystem/internal/auth"
	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository/memory"
)

// 2026-03-02 是周一
var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type testEnv struct {
	store       *memory.Store
	cfg         *config.Config
	clock       *testClock
	accrual     *AccrualService
	accounts    *AccountService
	redemptions *RedemptionService
	leaderboard *LeaderboardService
	catalog     *CatalogService
	analytics   *AnalyticsService
	admin       *auth.Admin
	seq         atomic.Int64
}

const fundActivity = "TEST_FUND"

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			Timezone:            "UTC",
			StreakBonusInterval: 0,
			LockTimeoutSeconds:  5,
			MaxRetryCount:       3,
		},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	store := memory.New()
	locker := lock.NewLocalLocker()
	clock := &testClock{t: day0}

	env := &testEnv{
		store:       store,
		cfg:         cfg,
		clock:       clock,
		accrual:     NewAccrualService(store, locker, cfg),
		accounts:    NewAccountService(store, cfg),
		redemptions: NewRedemptionService(store, locker, cfg),
		leaderboard: NewLeaderboardService(store, nil, cfg),
		catalog:     NewCatalogService(store),
		analytics:   NewAnalyticsService(store),
	}
	env.accrual.now = clock.Now
	env.accounts.now = clock.Now
	env.redemptions.now = clock.Now
	env.leaderboard.now = clock.Now

	admin, err := auth.Authorize(auth.Identity{UserID: 9000, Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	env.admin = admin

	ctx := context.Background()
	if err := env.catalog.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}
	if _, err := env.catalog.CreatePointActivity(ctx, admin, &CreateActivityRequest{
		ActivityCode: fundActivity,
		Name:         "test fund",
		BasePoints:   50,
		IsActive:     true,
	}); err != nil {
		t.Fatalf("CreatePointActivity() error = %v", err)
	}
	return env
}

// fund 给用户发放 points 积分，points 必须是 50 的倍数
func (e *testEnv) fund(t *testing.T, userID int64, points int64) {
	t.Helper()
	for i := int64(0); i < points/50; i++ {
		ref := fmt.Sprintf("fund-%d-%d", userID, e.seq.Add(1))
		if _, err := e.accrual.Accrue(context.Background(), &AccrueRequest{
			UserID:       userID,
			ActivityCode: fundActivity,
			ReferenceID:  ref,
		}); err != nil {
			t.Fatalf("fund Accrue() error = %v", err)
		}
	}
}

func (e *testEnv) checkIn(t *testing.T, userID int64, ref string, at time.Time) *AccrueResult {
	t.Helper()
	res, err := e.accrual.RecordAttendance(context.Background(), &AttendanceEvent{
		UserID:      userID,
		EventType:   AttendanceCheckIn,
		Timestamp:   at,
		ReferenceID: ref,
	})
	if err != nil {
		t.Fatalf("RecordAttendance(%s) error = %v", ref, err)
	}
	return res
}

func (e *testEnv) newReward(t *testing.T, name string, cost, stock int64, active bool) *model.Reward {
	t.Helper()
	reward, err := e.catalog.CreateReward(context.Background(), e.admin, &CreateRewardRequest{
		Name:           name,
		PointsCost:     cost,
		StockRemaining: stock,
		IsActive:       active,
	})
	if err != nil {
		t.Fatalf("CreateReward() error = %v", err)
	}
	return reward
}

func (e *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	points, err := e.accounts.GetUserPoints(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserPoints() error = %v", err)
	}
	return points.Balance
}

func (e *testEnv) ledgerSum(userID int64) int64 {
	var sum int64
	for _, entry := range e.store.Ledger(userID) {
		sum += entry.Points
	}
	return sum
}
