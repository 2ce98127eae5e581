package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svc *Services, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(IdentityMiddleware())

	h := NewHandler(svc)

	api := r.Group("/api/v1")
	{
		points := api.Group("/points")
		{
			points.GET("/me", RequireUser(), h.GetMyPoints)
			points.GET("/ledger", RequireUser(), h.GetLedger)
			points.GET("/leaderboard", h.GetLeaderboard)
		}

		rewards := api.Group("/rewards")
		{
			rewards.GET("", h.ListRewards)
			rewards.POST("/redeem", RequireUser(), h.Redeem)
			rewards.GET("/redemptions", RequireUser(), h.ListMyRedemptions)
		}

		// 考勤服务内部调用，由网关限制来源
		api.POST("/attendance/events", h.RecordAttendance)

		admin := api.Group("/admin", AdminRequired())
		{
			admin.GET("/activities", h.ListActivities)
			admin.POST("/activities", h.CreateActivity)
			admin.PUT("/activities/:code", h.UpdateActivity)

			admin.GET("/rewards", h.ListAllRewards)
			admin.POST("/rewards", h.CreateReward)
			admin.PUT("/rewards/:id", h.UpdateReward)

			admin.GET("/analytics", h.GetAnalytics)
			admin.GET("/redemptions", h.ListRedemptions)
			admin.PUT("/redemptions/:no/note", h.AnnotateRedemption)

			admin.POST("/points/award", h.AwardPoints)
			admin.POST("/points/reconcile", h.Reconcile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
