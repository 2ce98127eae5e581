package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/service"

	"github.com/go-co-op/gocron/v2"
)

// Reconciler 对账，由 AnalyticsService 实现
type Reconciler interface {
	Reconcile(ctx context.Context) (*service.ReconcileReport, error)
}

// ReconcileJob 按 cron 表达式定时核对余额和流水，只记录不修复
type ReconcileJob struct {
	reconciler Reconciler
	scheduler  gocron.Scheduler
	timeout    time.Duration
}

func NewReconcileJob(reconciler Reconciler, cfg *config.Config) (*ReconcileJob, error) {
	loc, err := cfg.Business.Location()
	if err != nil {
		return nil, err
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}

	j := &ReconcileJob{
		reconciler: reconciler,
		scheduler:  scheduler,
		timeout:    10 * time.Minute,
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(cfg.Business.ReconcileCron, false),
		gocron.NewTask(j.run),
		gocron.WithName("points-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("注册对账任务失败: %w", err)
	}
	return j, nil
}

func (j *ReconcileJob) Start() {
	log.Println("[ReconcileJob] 对账任务启动")
	j.scheduler.Start()
}

func (j *ReconcileJob) Stop() error {
	log.Println("[ReconcileJob] 对账任务停止")
	return j.scheduler.Shutdown()
}

func (j *ReconcileJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	report, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		log.Printf("[ReconcileJob] 对账失败: %v", err)
		return
	}
	if len(report.Mismatches) > 0 {
		log.Printf("[ReconcileJob] 对账完成，发现不平账户: checked=%d, mismatches=%d, cost=%v",
			report.Checked, len(report.Mismatches), time.Since(start))
		return
	}
	log.Printf("[ReconcileJob] 对账完成: checked=%d, cost=%v", report.Checked, time.Since(start))
}
