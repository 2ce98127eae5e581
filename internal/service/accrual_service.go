package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/auth"
	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/internal/streak"
	"pointsystem/pkg/idgen"
)

// 考勤事件类型
const (
	AttendanceCheckIn  = "CHECK_IN"
	AttendanceCheckOut = "CHECK_OUT"
)

// AccrualService 积分发放
//
// 一次发放在同一个事务里完成：锁定账户 -> 幂等检查 -> 校验活动 ->
// 更新余额和连续打卡 -> 写流水 -> 写本地消息。任何一步失败整体回滚。
type AccrualService struct {
	store  repository.Store
	locker lock.Locker
	cfg    *config.Config
	loc    *time.Location
	now    func() time.Time
}

func NewAccrualService(store repository.Store, locker lock.Locker, cfg *config.Config) *AccrualService {
	return &AccrualService{
		store:  store,
		locker: locker,
		cfg:    cfg,
		loc:    businessLocation(cfg),
		now:    time.Now,
	}
}

type AccrueRequest struct {
	UserID       int64
	ActivityCode string
	ReferenceID  string    // 触发发放的考勤记录等业务单号，同一活动下唯一
	OccurredAt   time.Time // 事件发生时间，为空取当前时间
	Remark       string
}

type AccrueResult struct {
	Entry      *model.LedgerEntry   `json:"entry"`
	BonusEntry *model.LedgerEntry   `json:"bonus_entry,omitempty"`
	Account    *model.PointsAccount `json:"account"`
	Duplicate  bool                 `json:"duplicate"` // 重复请求，返回的是第一次发放的流水
}

// AttendanceEvent 考勤服务推送的打卡事件
type AttendanceEvent struct {
	UserID      int64     `json:"user_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	ReferenceID string    `json:"reference_id"`
}

func (req *AccrueRequest) validate() error {
	req.ActivityCode = normalizeCode(req.ActivityCode)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)

	if req.UserID <= 0 {
		return apperr.Validation("user_id 必须大于0")
	}
	if req.ActivityCode == "" {
		return apperr.Validation("activity_code 不能为空")
	}
	if req.ActivityCode == model.ActivityRedemption {
		return apperr.Validation("%s 不能用于发放积分", model.ActivityRedemption)
	}
	if req.ReferenceID == "" {
		return apperr.Validation("reference_id 不能为空")
	}
	return nil
}

// Accrue 按活动配置给用户发放积分
// 同一 (用户, 活动, 来源单号) 只发放一次，重复调用返回第一次的流水且 Duplicate=true
func (s *AccrualService) Accrue(ctx context.Context, req *AccrueRequest) (*AccrueResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = s.now()
	}

	var result *AccrueResult
	var err error
	// 流水唯一索引冲突说明另一个实例刚提交了同一来源的发放，重跑一次事务读回已有流水
	for attempt := 1; attempt <= 2; attempt++ {
		err = withUserLock(ctx, s.locker, s.cfg.Business.LockTimeout(), req.UserID, func() error {
			return s.store.Transaction(ctx, func(tx repository.Tx) error {
				var err error
				result, err = s.accrueInTx(ctx, tx, req)
				return err
			})
		})
		if !errors.Is(err, repository.ErrDuplicateKey) {
			break
		}
		log.Printf("积分流水唯一键冲突，重新读取: userID=%d, activity=%s, ref=%s", req.UserID, req.ActivityCode, req.ReferenceID)
	}
	if err != nil {
		return nil, storeErr(err)
	}

	if result.Duplicate {
		log.Printf("积分重复发放请求已忽略: userID=%d, activity=%s, ref=%s", req.UserID, req.ActivityCode, req.ReferenceID)
	} else {
		log.Printf("积分发放成功: userID=%d, activity=%s, points=%d, balance=%d, streak=%d",
			req.UserID, req.ActivityCode, result.Entry.Points, result.Account.Balance, result.Account.CurrentStreak)
	}
	return result, nil
}

func (s *AccrualService) accrueInTx(ctx context.Context, tx repository.Tx, req *AccrueRequest) (*AccrueResult, error) {
	account, err := lockOrCreateAccount(ctx, tx, req.UserID, s.now())
	if err != nil {
		return nil, err
	}

	existing, err := tx.GetLedgerByReference(ctx, req.UserID, req.ActivityCode, req.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing != nil {
		return &AccrueResult{Entry: existing, Account: account, Duplicate: true}, nil
	}

	activity, err := tx.GetActivity(ctx, req.ActivityCode)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return nil, apperr.ErrUnknownActivity
		}
		return nil, fmt.Errorf("查询积分活动失败: %w", err)
	}
	if !activity.IsActive {
		return nil, apperr.ErrInactiveActivity
	}

	entry := credit(account, activity.ActivityCode, activity.BasePoints, req.ReferenceID, req.OccurredAt, req.Remark)
	entries := []*model.LedgerEntry{entry}

	var bonus *model.LedgerEntry
	if activity.ActivityCode == model.ActivityCheckIn {
		prev := accountStreak(account)
		next, changed := streak.Advance(prev, req.OccurredAt, s.loc)
		if changed {
			account.CurrentStreak = next.Current
			account.LongestStreak = next.Longest
			account.LastCheckInDate = next.LastDate
		}
		if streak.ReachedMilestone(prev, next, s.cfg.Business.StreakBonusInterval) {
			bonus, err = s.streakBonus(ctx, tx, account, req, next.Current)
			if err != nil {
				return nil, err
			}
			if bonus != nil {
				entries = append(entries, bonus)
			}
		}
	}

	if err := tx.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("更新积分账户失败: %w", err)
	}

	for _, e := range entries {
		if err := tx.AppendLedger(ctx, e); err != nil {
			return nil, fmt.Errorf("记录积分流水失败: %w", err)
		}
		msg := newOutboxMessage(s.cfg, model.EventPointsAccrued, e.EntryNo, map[string]interface{}{
			"entry_no":      e.EntryNo,
			"user_id":       e.UserID,
			"activity_code": e.ActivityCode,
			"points":        e.Points,
			"balance_after": e.BalanceAfter,
			"reference_id":  e.ReferenceID,
			"occurred_at":   e.CreatedAt.Format(time.RFC3339),
		})
		if msg != nil {
			if err := tx.CreateOutbox(ctx, msg); err != nil {
				return nil, fmt.Errorf("写入消息失败: %w", err)
			}
		}
	}

	return &AccrueResult{Entry: entry, BonusEntry: bonus, Account: account}, nil
}

// streakBonus 连续打卡达到里程碑时追加奖励，奖励活动未配置或已停用则跳过
func (s *AccrualService) streakBonus(ctx context.Context, tx repository.Tx, account *model.PointsAccount, req *AccrueRequest, days int) (*model.LedgerEntry, error) {
	activity, err := tx.GetActivity(ctx, model.ActivityStreakBonus)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询积分活动失败: %w", err)
	}
	if !activity.IsActive {
		return nil, nil
	}
	remark := fmt.Sprintf("连续打卡%d天奖励", days)
	return credit(account, activity.ActivityCode, activity.BasePoints, "streak:"+req.ReferenceID, req.OccurredAt, remark), nil
}

// RecordAttendance 把考勤事件映射成对应的积分活动
func (s *AccrualService) RecordAttendance(ctx context.Context, event *AttendanceEvent) (*AccrueResult, error) {
	var code string
	switch strings.ToUpper(strings.TrimSpace(event.EventType)) {
	case AttendanceCheckIn:
		code = model.ActivityCheckIn
	case AttendanceCheckOut:
		code = model.ActivityCheckOut
	default:
		return nil, apperr.Validation("不支持的考勤事件类型: %s", event.EventType)
	}

	return s.Accrue(ctx, &AccrueRequest{
		UserID:       event.UserID,
		ActivityCode: code,
		ReferenceID:  event.ReferenceID,
		OccurredAt:   event.Timestamp,
	})
}

// AwardPoints 管理员手工发放，仍然走活动配置和幂等校验
func (s *AccrualService) AwardPoints(ctx context.Context, admin *auth.Admin, req *AccrueRequest) (*AccrueResult, error) {
	if err := auth.Require(admin); err != nil {
		return nil, err
	}
	if req.Remark == "" {
		req.Remark = fmt.Sprintf("管理员%d发放", admin.UserID())
	}
	return s.Accrue(ctx, req)
}

// lockOrCreateAccount 锁定用户账户，首次发放时创建
func lockOrCreateAccount(ctx context.Context, tx repository.Tx, userID int64, now time.Time) (*model.PointsAccount, error) {
	account, err := tx.GetAccountForUpdate(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("查询积分账户失败: %w", err)
	}

	if err := tx.CreateAccount(ctx, &model.PointsAccount{UserID: userID, CreatedAt: now}); err != nil {
		return nil, fmt.Errorf("创建积分账户失败: %w", err)
	}
	account, err = tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询积分账户失败: %w", err)
	}
	return account, nil
}

// credit 在内存中给账户加分并生成对应流水，调用方负责持久化
func credit(account *model.PointsAccount, code string, points int64, referenceID string, at time.Time, remark string) *model.LedgerEntry {
	account.Balance += points
	account.TotalEarned += points
	return &model.LedgerEntry{
		EntryNo:      idgen.GenerateEntryNo(),
		UserID:       account.UserID,
		ActivityCode: code,
		ReferenceID:  referenceID,
		Points:       points,
		BalanceAfter: account.Balance,
		Remark:       remark,
		CreatedAt:    at,
	}
}

func accountStreak(account *model.PointsAccount) streak.State {
	return streak.State{
		Current:  account.CurrentStreak,
		Longest:  account.LongestStreak,
		LastDate: account.LastCheckInDate,
	}
}
