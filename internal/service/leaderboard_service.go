package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/cache"
	"pointsystem/internal/repository"

	"golang.org/x/sync/singleflight"
)

const (
	PeriodAllTime = "all-time"
	PeriodMonthly = "monthly"
	PeriodWeekly  = "weekly"

	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// LeaderboardService 积分排行榜
//
// 排名规则：
//   - all-time 按累计获得积分；monthly / weekly 汇总周期内的正向流水，兑换扣减不计入
//   - 积分为 0 的用户不上榜
//   - 同分按账户创建时间先后，再按用户ID，名次严格连续（不并列）
type LeaderboardService struct {
	store repository.Store
	cache cache.JSONCache
	ttl   time.Duration
	loc   *time.Location
	now   func() time.Time
	group singleflight.Group
}

// NewLeaderboardService jsonCache 可以为 nil，表示不缓存
func NewLeaderboardService(store repository.Store, jsonCache cache.JSONCache, cfg *config.Config) *LeaderboardService {
	return &LeaderboardService{
		store: store,
		cache: jsonCache,
		ttl:   cfg.Business.LeaderboardCacheTTL(),
		loc:   businessLocation(cfg),
		now:   time.Now,
	}
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	TotalPoints int64  `json:"total_points"`
}

type Leaderboard struct {
	Period  string              `json:"period"`
	Since   *time.Time          `json:"since,omitempty"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	Entries []*LeaderboardEntry `json:"entries"`
}

// PeriodStart 返回周期起点，all-time 返回 nil
func PeriodStart(period string, now time.Time, loc *time.Location) (*time.Time, error) {
	local := now.In(loc)
	y, m, d := local.Date()
	switch period {
	case PeriodAllTime:
		return nil, nil
	case PeriodMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return &start, nil
	case PeriodWeekly:
		// 周一为一周的第一天
		back := (int(local.Weekday()) + 6) % 7
		start := time.Date(y, m, d-back, 0, 0, 0, 0, loc)
		return &start, nil
	default:
		return nil, apperr.Validation("不支持的排行榜周期: %s", period)
	}
}

func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit, offset int, period string) (*Leaderboard, error) {
	if period == "" {
		period = PeriodAllTime
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if offset < 0 {
		return nil, apperr.Validation("offset 不能为负数")
	}

	since, err := PeriodStart(period, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("leaderboard:%s:%d:%d", period, limit, offset)
	if since != nil {
		key += ":" + since.Format("20060102")
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.load(ctx, key, period, since, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Leaderboard), nil
}

func (s *LeaderboardService) load(ctx context.Context, key, period string, since *time.Time, limit, offset int) (*Leaderboard, error) {
	if s.cache != nil && s.ttl > 0 {
		var cached Leaderboard
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("[Leaderboard] 读取缓存失败: key=%s, err=%v", key, err)
		} else if hit {
			return &cached, nil
		}
	}

	rows, err := s.store.Leaderboard(ctx, since, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	userIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		userIDs = append(userIDs, r.UserID)
	}
	names, err := s.store.GetUserNames(ctx, userIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	board := &Leaderboard{
		Period:  period,
		Since:   since,
		Limit:   limit,
		Offset:  offset,
		Entries: make([]*LeaderboardEntry, 0, len(rows)),
	}
	for i, r := range rows {
		board.Entries = append(board.Entries, &LeaderboardEntry{
			Rank:        offset + i + 1,
			UserID:      r.UserID,
			Name:        names[r.UserID],
			TotalPoints: r.TotalPoints,
		})
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, board, s.ttl); err != nil {
			log.Printf("[Leaderboard] 写入缓存失败: key=%s, err=%v", key, err)
		}
	}
	return board, nil
}
