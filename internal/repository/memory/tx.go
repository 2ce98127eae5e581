package memory

import (
	"context"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

// tx 在状态副本上操作，提交前对其他调用方不可见
type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) GetAccountForUpdate(ctx context.Context, userID int64) (*model.PointsAccount, error) {
	a, ok := t.st.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (t *tx) CreateAccount(ctx context.Context, account *model.PointsAccount) error {
	if _, ok := t.st.accounts[account.UserID]; ok {
		return nil
	}
	c := *account
	c.ID = t.st.nextID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	c.UpdatedAt = c.CreatedAt
	t.st.accounts[c.UserID] = &c
	account.ID = c.ID
	account.CreatedAt = c.CreatedAt
	return nil
}

func (t *tx) SaveAccount(ctx context.Context, account *model.PointsAccount) error {
	stored, ok := t.st.accounts[account.UserID]
	if !ok || stored.ID != account.ID || stored.Version != account.Version {
		return repository.ErrOptimisticLock
	}
	stored.Balance = account.Balance
	stored.TotalEarned = account.TotalEarned
	stored.CurrentStreak = account.CurrentStreak
	stored.LongestStreak = account.LongestStreak
	stored.LastCheckInDate = account.LastCheckInDate
	stored.Version++
	stored.UpdatedAt = t.now()
	account.Version = stored.Version
	return nil
}

func (t *tx) GetLedgerByReference(ctx context.Context, userID int64, activityCode, referenceID string) (*model.LedgerEntry, error) {
	e, ok := t.st.ledgerRefs[refKey{userID, activityCode, referenceID}]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (t *tx) AppendLedger(ctx context.Context, entry *model.LedgerEntry) error {
	key := refKey{entry.UserID, entry.ActivityCode, entry.ReferenceID}
	if _, ok := t.st.ledgerRefs[key]; ok {
		return repository.ErrDuplicateKey
	}
	c := *entry
	c.ID = t.st.nextID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	t.st.ledger = append(t.st.ledger, &c)
	t.st.ledgerRefs[key] = &c
	entry.ID = c.ID
	entry.CreatedAt = c.CreatedAt
	return nil
}

func (t *tx) GetActivity(ctx context.Context, code string) (*model.PointActivity, error) {
	a, ok := t.st.activities[code]
	if !ok {
		return nil, repository.ErrActivityNotFound
	}
	c := *a
	return &c, nil
}

func (t *tx) GetActivityForUpdate(ctx context.Context, code string) (*model.PointActivity, error) {
	return t.GetActivity(ctx, code)
}

func (t *tx) CreateActivity(ctx context.Context, activity *model.PointActivity) error {
	if _, ok := t.st.activities[activity.ActivityCode]; ok {
		return repository.ErrDuplicateKey
	}
	c := *activity
	c.ID = t.st.nextID()
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.activities[c.ActivityCode] = &c
	activity.ID = c.ID
	activity.CreatedAt = c.CreatedAt
	activity.UpdatedAt = c.UpdatedAt
	return nil
}

func (t *tx) SaveActivity(ctx context.Context, activity *model.PointActivity) error {
	stored, ok := t.st.activities[activity.ActivityCode]
	if !ok {
		return repository.ErrActivityNotFound
	}
	stored.Name = activity.Name
	stored.Description = activity.Description
	stored.BasePoints = activity.BasePoints
	stored.IsActive = activity.IsActive
	stored.UpdatedAt = t.now()
	activity.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *tx) GetRewardForUpdate(ctx context.Context, id int64) (*model.Reward, error) {
	r, ok := t.st.rewards[id]
	if !ok {
		return nil, repository.ErrRewardNotFound
	}
	c := *r
	return &c, nil
}

func (t *tx) CreateReward(ctx context.Context, reward *model.Reward) error {
	c := *reward
	c.ID = t.st.nextID()
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.rewards[c.ID] = &c
	reward.ID = c.ID
	reward.CreatedAt = c.CreatedAt
	reward.UpdatedAt = c.UpdatedAt
	return nil
}

func (t *tx) SaveReward(ctx context.Context, reward *model.Reward) error {
	stored, ok := t.st.rewards[reward.ID]
	if !ok || stored.Version != reward.Version {
		return repository.ErrOptimisticLock
	}
	stored.Name = reward.Name
	stored.Slug = reward.Slug
	stored.Description = reward.Description
	stored.PointsCost = reward.PointsCost
	stored.StockRemaining = reward.StockRemaining
	stored.IsActive = reward.IsActive
	stored.Version++
	stored.UpdatedAt = t.now()
	reward.Version = stored.Version
	return nil
}

func (t *tx) CreateRedemption(ctx context.Context, redemption *model.Redemption) error {
	for _, r := range t.st.redemptions {
		if r.RedemptionNo == redemption.RedemptionNo {
			return repository.ErrDuplicateKey
		}
	}
	c := *redemption
	c.ID = t.st.nextID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	c.UpdatedAt = c.CreatedAt
	t.st.redemptions = append(t.st.redemptions, &c)
	redemption.ID = c.ID
	redemption.CreatedAt = c.CreatedAt
	return nil
}

func (t *tx) GetRedemptionForUpdate(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	for _, r := range t.st.redemptions {
		if r.RedemptionNo == redemptionNo {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrRedemptionNotFound
}

func (t *tx) SaveRedemption(ctx context.Context, redemption *model.Redemption) error {
	for _, r := range t.st.redemptions {
		if r.ID == redemption.ID {
			r.Status = redemption.Status
			r.AdminNote = redemption.AdminNote
			r.UpdatedAt = t.now()
			return nil
		}
	}
	return repository.ErrRedemptionNotFound
}

func (t *tx) CreateOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	c := *msg
	c.ID = t.st.nextID()
	if c.Status == "" {
		c.Status = model.OutboxStatusPending
	}
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.outbox = append(t.st.outbox, &c)
	msg.ID = c.ID
	return nil
}
