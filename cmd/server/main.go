package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/handler"
	"pointsystem/internal/infrastructure/cache"
	"pointsystem/internal/infrastructure/database"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/infrastructure/mq"
	"pointsystem/internal/job"
	"pointsystem/internal/repository"
	"pointsystem/internal/repository/memory"
	"pointsystem/internal/service"
	"pointsystem/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Business.WorkerID); err != nil {
		log.Fatalf("初始化ID生成器失败: %v", err)
	}

	// 初始化存储
	var store repository.Store
	if cfg.Database.Driver == "memory" {
		log.Println("使用内存存储，数据不会持久化")
		store = memory.New()
	} else {
		db, err := database.Open(&cfg.Database)
		if err != nil {
			log.Fatalf("初始化数据库失败: %v", err)
		}
		store = repository.NewGormStore(db)
	}

	// 初始化 Redis：启用时用分布式锁和排行榜缓存，否则退化为进程内锁
	var locker lock.Locker = lock.NewLocalLocker()
	var leaderboardCache cache.JSONCache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, 10*time.Second, 50*time.Millisecond, 60)
		leaderboardCache = cache.NewRedisJSONCache(redisClient, "points:")
	}

	svc := &handler.Services{
		Account:     service.NewAccountService(store, cfg),
		Accrual:     service.NewAccrualService(store, locker, cfg),
		Redemption:  service.NewRedemptionService(store, locker, cfg),
		Leaderboard: service.NewLeaderboardService(store, leaderboardCache, cfg),
		Catalog:     service.NewCatalogService(store),
		Analytics:   service.NewAnalyticsService(store),
	}

	if err := svc.Catalog.EnsureDefaults(context.Background()); err != nil {
		log.Fatalf("初始化积分活动失败: %v", err)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 生产者失败: %v", err)
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(store, producer, cfg)
		go outboxSender.Start(ctx)

		group, err := mq.NewConsumerGroup(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 消费组失败: %v", err)
		}
		defer group.Close()

		consumer := job.NewAttendanceConsumer(svc.Accrual)
		go consumer.Run(ctx, group, []string{cfg.Kafka.Topic.AttendanceEvent})
	}

	reconcileJob, err := job.NewReconcileJob(svc.Analytics, cfg)
	if err != nil {
		log.Fatalf("初始化对账任务失败: %v", err)
	}
	reconcileJob.Start()

	// 设置路由
	router := handler.SetupRouter(svc, cfg.Server.Mode)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()
	if err := reconcileJob.Stop(); err != nil {
		log.Printf("对账任务关闭异常: %v", err)
	}

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
