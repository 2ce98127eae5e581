package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"

	"github.com/google/uuid"
)

// withUserLock 同一用户的积分变更串行执行，拿不到锁直接返回繁忙，不自动重试
func withUserLock(ctx context.Context, locker lock.Locker, timeout time.Duration, userID int64, fn func() error) error {
	if locker == nil {
		return fn()
	}

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	userLock := locker.NewLock(lock.PointsLockKey(userID), uuid.NewString())
	if err := userLock.Lock(lockCtx); err != nil {
		return apperr.Wrap(apperr.ErrBusy, err)
	}
	defer func() {
		if err := userLock.Unlock(context.Background()); err != nil {
			log.Printf("[PointsLock] 释放锁失败: userID=%d, err=%v", userID, err)
		}
	}()

	return fn()
}

// storeErr 业务错误原样返回，其余视为存储故障
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, repository.ErrOptimisticLock) {
		return apperr.Wrap(apperr.ErrBusy, err)
	}
	return apperr.Internal(err)
}

// newOutboxMessage Kafka 关闭时返回 nil，不写本地消息表
func newOutboxMessage(cfg *config.Config, eventType, key string, payload map[string]interface{}) *model.OutboxMessage {
	if cfg == nil || !cfg.Kafka.Enabled {
		return nil
	}
	payload["event_type"] = eventType
	payloadBytes, _ := json.Marshal(payload)
	return &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      cfg.Kafka.Topic.PointsEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
}

func businessLocation(cfg *config.Config) *time.Location {
	loc, err := cfg.Business.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
