package job

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"pointsystem/internal/apperr"
	"pointsystem/internal/service"

	"github.com/IBM/sarama"
)

// AttendanceRecorder 考勤事件落到积分发放，由 AccrualService 实现
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, event *service.AttendanceEvent) (*service.AccrueResult, error)
}

// AttendanceConsumer 消费考勤服务的打卡事件
// 发放本身是幂等的，消息重复投递不会重复加分
type AttendanceConsumer struct {
	recorder      AttendanceRecorder
	maxAttempts   int
	retryInterval time.Duration
}

func NewAttendanceConsumer(recorder AttendanceRecorder) *AttendanceConsumer {
	return &AttendanceConsumer{
		recorder:      recorder,
		maxAttempts:   3,
		retryInterval: 200 * time.Millisecond,
	}
}

// Run 阻塞消费直到 ctx 结束，rebalance 后重新加入消费组
func (c *AttendanceConsumer) Run(ctx context.Context, group sarama.ConsumerGroup, topics []string) {
	log.Printf("[AttendanceConsumer] 开始消费: topics=%v", topics)

	go func() {
		for err := range group.Errors() {
			log.Printf("[AttendanceConsumer] 消费组错误: %v", err)
		}
	}()

	for {
		if err := group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.Printf("[AttendanceConsumer] 消费失败: %v", err)
			time.Sleep(time.Second)
		}
		if ctx.Err() != nil {
			log.Println("[AttendanceConsumer] 收到停止信号，退出消费")
			return
		}
	}
}

func (c *AttendanceConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *AttendanceConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *AttendanceConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.process(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process 可重试的错误（存储故障、拿不到锁）有限次重试，其余错误记录后跳过
func (c *AttendanceConsumer) process(ctx context.Context, msg *sarama.ConsumerMessage) {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.handleMessage(ctx, msg.Value)
		if err == nil || !retryable(err) || attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryInterval):
		}
	}
	if err != nil {
		log.Printf("[AttendanceConsumer] 事件处理失败已跳过: partition=%d, offset=%d, reason=%v",
			msg.Partition, msg.Offset, err)
	}
}

func (c *AttendanceConsumer) handleMessage(ctx context.Context, value []byte) error {
	var event service.AttendanceEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return apperr.Validation("考勤事件格式错误: %v", err)
	}
	_, err := c.recorder.RecordAttendance(ctx, &event)
	return err
}

func retryable(err error) bool {
	if errors.Is(err, apperr.ErrBusy) {
		return true
	}
	return apperr.KindOf(err) == apperr.KindInternal
}
