// Package memory 提供 repository.Store 的内存实现，用于单元测试和本地开发。
//
// 事务是可串行化的：写事务之间互斥，事务在状态副本上执行，
// 成功后整体替换，失败时直接丢弃副本，因此失败的事务不会留下任何痕迹。
// 只读查询读取最近一次提交的状态，不会被写事务阻塞。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

type refKey struct {
	userID       int64
	activityCode string
	referenceID  string
}

type state struct {
	accounts    map[int64]*model.PointsAccount
	ledger      []*model.LedgerEntry
	ledgerRefs  map[refKey]*model.LedgerEntry
	activities  map[string]*model.PointActivity
	rewards     map[int64]*model.Reward
	redemptions []*model.Redemption
	outbox      []*model.OutboxMessage
	users       map[int64]*model.User
	lastID      int64
}

func newState() *state {
	return &state{
		accounts:   make(map[int64]*model.PointsAccount),
		ledgerRefs: make(map[refKey]*model.LedgerEntry),
		activities: make(map[string]*model.PointActivity),
		rewards:    make(map[int64]*model.Reward),
		users:      make(map[int64]*model.User),
	}
}

// clone 复制可变记录，流水写入后不可变，直接共享指针
func (s *state) clone() *state {
	c := &state{
		accounts:   make(map[int64]*model.PointsAccount, len(s.accounts)),
		ledger:     append([]*model.LedgerEntry(nil), s.ledger...),
		ledgerRefs: make(map[refKey]*model.LedgerEntry, len(s.ledgerRefs)),
		activities: make(map[string]*model.PointActivity, len(s.activities)),
		rewards:    make(map[int64]*model.Reward, len(s.rewards)),
		users:      s.users,
		lastID:     s.lastID,
	}
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	for k, v := range s.ledgerRefs {
		c.ledgerRefs[k] = v
	}
	for k, v := range s.activities {
		a := *v
		c.activities[k] = &a
	}
	for k, v := range s.rewards {
		r := *v
		c.rewards[k] = &r
	}
	c.redemptions = make([]*model.Redemption, len(s.redemptions))
	for i, v := range s.redemptions {
		r := *v
		c.redemptions[i] = &r
	}
	c.outbox = make([]*model.OutboxMessage, len(s.outbox))
	for i, v := range s.outbox {
		m := *v
		c.outbox[i] = &m
	}
	return c
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

// Store 内存存储
type Store struct {
	writeMu sync.Mutex   // 串行化所有写操作
	mu      sync.RWMutex // 保护 current 指针
	current *state
	now     func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{current: newState(), now: time.Now}
}

// AddUser 写入用户资料，模拟身份服务同步过来的数据
func (s *Store) AddUser(user *model.User) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.snapshot().clone()
	users := make(map[int64]*model.User, len(next.users)+1)
	for k, v := range next.users {
		users[k] = v
	}
	u := *user
	users[u.ID] = &u
	next.users = users
	s.commit(next)
}

// Ledger 返回某个用户的全部流水，按写入顺序
func (s *Store) Ledger(userID int64) []model.LedgerEntry {
	st := s.snapshot()
	var out []model.LedgerEntry
	for _, e := range st.ledger {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

// Outbox 返回全部本地消息
func (s *Store) Outbox() []model.OutboxMessage {
	st := s.snapshot()
	out := make([]model.OutboxMessage, 0, len(st.outbox))
	for _, m := range st.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) commit(next *state) {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := s.snapshot().clone()
	if err := fn(&tx{st: next, now: s.now}); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

// update 事务外的单条写操作
func (s *Store) update(fn func(st *state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.snapshot().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func paginate(total, page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

func (s *Store) GetAccount(ctx context.Context, userID int64) (*model.PointsAccount, error) {
	a, ok := s.snapshot().accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) ListLedgerByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	st := s.snapshot()
	var matched []*model.LedgerEntry
	for i := len(st.ledger) - 1; i >= 0; i-- {
		if st.ledger[i].UserID == userID {
			e := *st.ledger[i]
			matched = append(matched, &e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	start, end := paginate(len(matched), page, pageSize)
	return matched[start:end], int64(len(matched)), nil
}

func (s *Store) GetActivity(ctx context.Context, code string) (*model.PointActivity, error) {
	a, ok := s.snapshot().activities[code]
	if !ok {
		return nil, repository.ErrActivityNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) ListActivities(ctx context.Context) ([]*model.PointActivity, error) {
	st := s.snapshot()
	out := make([]*model.PointActivity, 0, len(st.activities))
	for _, a := range st.activities {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityCode < out[j].ActivityCode })
	return out, nil
}

func (s *Store) EnsureActivities(ctx context.Context, activities []*model.PointActivity) error {
	return s.update(func(st *state) error {
		for _, a := range activities {
			if _, ok := st.activities[a.ActivityCode]; ok {
				continue
			}
			c := *a
			c.ID = st.nextID()
			c.CreatedAt = s.now()
			c.UpdatedAt = c.CreatedAt
			st.activities[c.ActivityCode] = &c
		}
		return nil
	})
}

func (s *Store) GetReward(ctx context.Context, id int64) (*model.Reward, error) {
	r, ok := s.snapshot().rewards[id]
	if !ok {
		return nil, repository.ErrRewardNotFound
	}
	c := *r
	return &c, nil
}

func (s *Store) ListRewards(ctx context.Context, onlyActive bool) ([]*model.Reward, error) {
	st := s.snapshot()
	out := make([]*model.Reward, 0, len(st.rewards))
	for _, r := range st.rewards {
		if onlyActive && !r.IsActive {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsCost != out[j].PointsCost {
			return out[i].PointsCost < out[j].PointsCost
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetRedemption(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	for _, r := range s.snapshot().redemptions {
		if r.RedemptionNo == redemptionNo {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrRedemptionNotFound
}

func (s *Store) ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]*model.Redemption, int64, error) {
	st := s.snapshot()
	var matched []*model.Redemption
	for _, r := range st.redemptions {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.UserID > 0 && r.UserID != filter.UserID {
			continue
		}
		if filter.RewardID > 0 && r.RewardID != filter.RewardID {
			continue
		}
		if filter.DateFrom != nil && r.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !r.CreatedAt.Before(*filter.DateTo) {
			continue
		}
		c := *r
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	start, end := paginate(len(matched), filter.Page, filter.PageSize)
	return matched[start:end], int64(len(matched)), nil
}

func (s *Store) Leaderboard(ctx context.Context, since *time.Time, limit, offset int) ([]*model.LeaderboardRow, error) {
	st := s.snapshot()
	totals := make(map[int64]int64)
	if since == nil {
		for userID, a := range st.accounts {
			totals[userID] = a.TotalEarned
		}
	} else {
		for _, e := range st.ledger {
			if e.Points > 0 && !e.CreatedAt.Before(*since) {
				totals[e.UserID] += e.Points
			}
		}
	}

	rows := make([]*model.LeaderboardRow, 0, len(totals))
	for userID, total := range totals {
		if total <= 0 {
			continue
		}
		a, ok := st.accounts[userID]
		if !ok {
			continue
		}
		rows = append(rows, &model.LeaderboardRow{UserID: userID, TotalPoints: total, AccountCreatedAt: a.CreatedAt})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalPoints != rows[j].TotalPoints {
			return rows[i].TotalPoints > rows[j].TotalPoints
		}
		if !rows[i].AccountCreatedAt.Equal(rows[j].AccountCreatedAt) {
			return rows[i].AccountCreatedAt.Before(rows[j].AccountCreatedAt)
		}
		return rows[i].UserID < rows[j].UserID
	})

	if offset >= len(rows) {
		return []*model.LeaderboardRow{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (s *Store) GetUserNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	st := s.snapshot()
	names := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if u, ok := st.users[id]; ok {
			names[id] = u.Name
		}
	}
	return names, nil
}

func (s *Store) SumAccounts(ctx context.Context) (*model.AccountTotals, error) {
	st := s.snapshot()
	totals := &model.AccountTotals{}
	for _, a := range st.accounts {
		totals.Accounts++
		totals.TotalEarned += a.TotalEarned
		totals.TotalBalance += a.Balance
	}
	return totals, nil
}

func (s *Store) SumPointsByActivity(ctx context.Context) ([]*model.ActivityPoints, error) {
	st := s.snapshot()
	byCode := make(map[string]*model.ActivityPoints)
	for _, e := range st.ledger {
		p, ok := byCode[e.ActivityCode]
		if !ok {
			p = &model.ActivityPoints{ActivityCode: e.ActivityCode}
			byCode[e.ActivityCode] = p
		}
		p.Entries++
		p.Points += e.Points
	}
	out := make([]*model.ActivityPoints, 0, len(byCode))
	for _, p := range byCode {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityCode < out[j].ActivityCode })
	return out, nil
}

func (s *Store) RedemptionStats(ctx context.Context) ([]*model.RedemptionStat, error) {
	st := s.snapshot()
	byStatus := make(map[string]*model.RedemptionStat)
	for _, r := range st.redemptions {
		stat, ok := byStatus[r.Status]
		if !ok {
			stat = &model.RedemptionStat{Status: r.Status}
			byStatus[r.Status] = stat
		}
		stat.Count++
		stat.Points += r.PointsSpent
	}
	out := make([]*model.RedemptionStat, 0, len(byStatus))
	for _, stat := range byStatus {
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *Store) LedgerSums(ctx context.Context, afterUserID int64, limit int) ([]*model.LedgerSum, error) {
	st := s.snapshot()
	sums := make(map[int64]*model.LedgerSum)
	for userID, a := range st.accounts {
		if userID <= afterUserID {
			continue
		}
		sums[userID] = &model.LedgerSum{UserID: userID, Balance: a.Balance, TotalEarned: a.TotalEarned}
	}
	for _, e := range st.ledger {
		sum, ok := sums[e.UserID]
		if !ok {
			continue
		}
		sum.SumPoints += e.Points
		if e.Points > 0 {
			sum.SumPositive += e.Points
		}
	}
	out := make([]*model.LedgerSum, 0, len(sums))
	for _, sum := range sums {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	st := s.snapshot()
	var out []*model.OutboxMessage
	for _, m := range st.outbox {
		if m.Status != model.OutboxStatusPending {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) updateMessage(id int64, fn func(m *model.OutboxMessage)) error {
	return s.update(func(st *state) error {
		for _, m := range st.outbox {
			if m.ID == id {
				fn(m)
				m.UpdatedAt = s.now()
				return nil
			}
		}
		return nil
	})
}

func (s *Store) MarkMessageSent(ctx context.Context, id int64) error {
	return s.updateMessage(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusSent })
}

func (s *Store) IncrementRetryCount(ctx context.Context, id int64) error {
	return s.updateMessage(id, func(m *model.OutboxMessage) { m.RetryCount++ })
}

func (s *Store) MarkMessageFailed(ctx context.Context, id int64) error {
	return s.updateMessage(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
}
