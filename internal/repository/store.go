package repository

import (
	"context"
	"errors"
	"time"

	"pointsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound    = errors.New("积分账户不存在")
	ErrActivityNotFound   = errors.New("积分活动不存在")
	ErrRewardNotFound     = errors.New("奖品不存在")
	ErrRedemptionNotFound = errors.New("兑换记录不存在")
	ErrDuplicateKey       = errors.New("唯一键冲突")
	ErrOptimisticLock     = errors.New("乐观锁冲突，请重试")
)

// Tx 事务内可用的读写操作
// ForUpdate 结尾的方法会对行加排他锁，直到事务结束
type Tx interface {
	GetAccountForUpdate(ctx context.Context, userID int64) (*model.PointsAccount, error)
	CreateAccount(ctx context.Context, account *model.PointsAccount) error
	SaveAccount(ctx context.Context, account *model.PointsAccount) error

	GetLedgerByReference(ctx context.Context, userID int64, activityCode, referenceID string) (*model.LedgerEntry, error)
	AppendLedger(ctx context.Context, entry *model.LedgerEntry) error

	GetActivity(ctx context.Context, code string) (*model.PointActivity, error)
	GetActivityForUpdate(ctx context.Context, code string) (*model.PointActivity, error)
	CreateActivity(ctx context.Context, activity *model.PointActivity) error
	SaveActivity(ctx context.Context, activity *model.PointActivity) error

	GetRewardForUpdate(ctx context.Context, id int64) (*model.Reward, error)
	CreateReward(ctx context.Context, reward *model.Reward) error
	SaveReward(ctx context.Context, reward *model.Reward) error

	CreateRedemption(ctx context.Context, redemption *model.Redemption) error
	GetRedemptionForUpdate(ctx context.Context, redemptionNo string) (*model.Redemption, error)
	SaveRedemption(ctx context.Context, redemption *model.Redemption) error

	CreateOutbox(ctx context.Context, msg *model.OutboxMessage) error
}

// Reader 不加锁的只读查询，不会阻塞积分发放和兑换
type Reader interface {
	GetAccount(ctx context.Context, userID int64) (*model.PointsAccount, error)
	ListLedgerByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error)

	GetActivity(ctx context.Context, code string) (*model.PointActivity, error)
	ListActivities(ctx context.Context) ([]*model.PointActivity, error)
	EnsureActivities(ctx context.Context, activities []*model.PointActivity) error

	GetReward(ctx context.Context, id int64) (*model.Reward, error)
	ListRewards(ctx context.Context, onlyActive bool) ([]*model.Reward, error)

	GetRedemption(ctx context.Context, redemptionNo string) (*model.Redemption, error)
	ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]*model.Redemption, int64, error)

	Leaderboard(ctx context.Context, since *time.Time, limit, offset int) ([]*model.LeaderboardRow, error)
	GetUserNames(ctx context.Context, userIDs []int64) (map[int64]string, error)

	SumAccounts(ctx context.Context) (*model.AccountTotals, error)
	SumPointsByActivity(ctx context.Context) ([]*model.ActivityPoints, error)
	RedemptionStats(ctx context.Context) ([]*model.RedemptionStat, error)
	LedgerSums(ctx context.Context, afterUserID int64, limit int) ([]*model.LedgerSum, error)

	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkMessageSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkMessageFailed(ctx context.Context, id int64) error
}

// Store 积分引擎依赖的存储句柄
// 所有余额、库存的修改都必须放在 Transaction 里，并和对应的流水、兑换记录一起提交
type Store interface {
	Reader
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// GormStore 基于 GORM 的实现，MySQL 和 PostgreSQL 共用
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// translate 把 GORM 的通用错误换成仓储层错误
func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
