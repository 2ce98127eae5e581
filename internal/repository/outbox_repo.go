package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
)

func (t *gormTx) CreateOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	return t.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (s *GormStore) MarkMessageSent(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

func (s *GormStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (s *GormStore) MarkMessageFailed(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusFailed).Error
}
