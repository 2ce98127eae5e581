package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/model"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = data
	return nil
}

func userIDs(board *Leaderboard) []int64 {
	ids := make([]int64, 0, len(board.Entries))
	for _, e := range board.Entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLeaderboardTieBreakByAccountAge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.store.AddUser(&model.User{ID: 1, Name: "Alice"})
	env.store.AddUser(&model.User{ID: 2, Name: "Bob"})
	env.store.AddUser(&model.User{ID: 3, Name: "Carol"})

	env.clock.Set(day0)
	env.checkIn(t, 2, "b-1", day0)
	env.clock.Set(day0.Add(time.Hour))
	env.checkIn(t, 1, "a-1", day0.Add(time.Hour))
	env.clock.Set(day0.Add(2 * time.Hour))
	env.fund(t, 3, 50)

	board, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodAllTime)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if got := userIDs(board); !sameIDs(got, []int64{3, 2, 1}) {
		t.Fatalf("order = %v, want [3 2 1]", got)
	}
	for i, e := range board.Entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d rank = %d, want %d", i, e.Rank, i+1)
		}
	}
	if board.Entries[0].Name != "Carol" || board.Entries[0].TotalPoints != 50 {
		t.Errorf("top entry = %+v", board.Entries[0])
	}

	again, _ := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodAllTime)
	if !sameIDs(userIDs(again), userIDs(board)) {
		t.Error("repeated query returned a different order")
	}

	page, err := env.leaderboard.GetLeaderboard(ctx, 1, 1, PeriodAllTime)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].UserID != 2 || page.Entries[0].Rank != 2 {
		t.Errorf("second page = %+v", page.Entries)
	}
}

func TestLeaderboardWindowsExcludeRedemptions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	const userA, userB, userD = 1, 2, 4

	// 上周
	lastWeek := day0.AddDate(0, 0, -3)
	env.clock.Set(lastWeek)
	env.fund(t, userA, 50)
	env.fund(t, userD, 100)

	// 本周
	thisWeek := day0.AddDate(0, 0, 1)
	env.clock.Set(thisWeek)
	env.checkIn(t, userA, "a-1", thisWeek)
	env.fund(t, userB, 50)
	reward := env.newReward(t, "Pen", 10, 5, true)
	if _, err := env.redemptions.Redeem(ctx, userA, reward.ID); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	env.clock.Set(day0.AddDate(0, 0, 2))
	weekly, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodWeekly)
	if err != nil {
		t.Fatalf("GetLeaderboard(weekly) error = %v", err)
	}
	if got := userIDs(weekly); !sameIDs(got, []int64{userB, userA}) {
		t.Fatalf("weekly order = %v, want [2 1]", got)
	}
	if weekly.Entries[1].TotalPoints != 10 {
		t.Errorf("weekly points for A = %d, want 10", weekly.Entries[1].TotalPoints)
	}
	if weekly.Since == nil || !weekly.Since.Equal(day0.Truncate(24*time.Hour)) {
		t.Errorf("weekly since = %v", weekly.Since)
	}

	allTime, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodAllTime)
	if err != nil {
		t.Fatalf("GetLeaderboard(all-time) error = %v", err)
	}
	if got := userIDs(allTime); !sameIDs(got, []int64{userD, userA, userB}) {
		t.Errorf("all-time order = %v, want [4 1 2]", got)
	}
	if allTime.Entries[1].TotalPoints != 60 {
		t.Errorf("all-time points for A = %d, want 60", allTime.Entries[1].TotalPoints)
	}
}

func TestLeaderboardValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, "yearly"); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("unknown period: error = %v", err)
	}
	if _, err := env.leaderboard.GetLeaderboard(ctx, 10, -1, PeriodAllTime); !errors.Is(err, apperr.ErrInvalidParam) {
		t.Errorf("negative offset: error = %v", err)
	}

	board, err := env.leaderboard.GetLeaderboard(ctx, 0, 0, "")
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if board.Limit != defaultLeaderboardLimit || board.Period != PeriodAllTime || len(board.Entries) != 0 {
		t.Errorf("board = %+v", board)
	}
	board, _ = env.leaderboard.GetLeaderboard(ctx, 1000, 0, PeriodAllTime)
	if board.Limit != maxLeaderboardLimit {
		t.Errorf("limit = %d, want %d", board.Limit, maxLeaderboardLimit)
	}
}

func TestLeaderboardUsesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	cache := &mapCache{data: map[string][]byte{}}
	env.leaderboard.cache = cache
	env.leaderboard.ttl = time.Minute

	env.fund(t, 1, 50)
	first, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodAllTime)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	env.fund(t, 2, 100)
	second, err := env.leaderboard.GetLeaderboard(ctx, 10, 0, PeriodAllTime)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}

	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
	if !sameIDs(userIDs(first), userIDs(second)) {
		t.Errorf("cached board changed within ttl: %v vs %v", userIDs(first), userIDs(second))
	}
}

func TestPeriodStart(t *testing.T) {
	sunday := time.Date(2026, 3, 8, 23, 30, 0, 0, time.UTC)

	weekly, err := PeriodStart(PeriodWeekly, sunday, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !weekly.Equal(want) {
		t.Errorf("weekly start = %v, want %v", weekly, want)
	}

	monthly, _ := PeriodStart(PeriodMonthly, sunday, time.UTC)
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !monthly.Equal(want) {
		t.Errorf("monthly start = %v, want %v", monthly, want)
	}

	// 业务时区已经是周一
	tokyo := time.FixedZone("UTC+9", 9*3600)
	weekly, _ = PeriodStart(PeriodWeekly, sunday, tokyo)
	if want := time.Date(2026, 3, 9, 0, 0, 0, 0, tokyo); !weekly.Equal(want) {
		t.Errorf("weekly start in UTC+9 = %v, want %v", weekly, want)
	}

	allTime, err := PeriodStart(PeriodAllTime, sunday, time.UTC)
	if err != nil || allTime != nil {
		t.Errorf("all-time start = %v, %v", allTime, err)
	}
}
