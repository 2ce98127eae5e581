package handler

import (
	"strconv"
	"strings"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/service"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services handler 依赖的全部服务
type Services struct {
	Account     *service.AccountService
	Accrual     *service.AccrualService
	Redemption  *service.RedemptionService
	Leaderboard *service.LeaderboardService
	Catalog     *service.CatalogService
	Analytics   *service.AnalyticsService
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService     *service.AccountService
	accrualService     *service.AccrualService
	redemptionService  *service.RedemptionService
	leaderboardService *service.LeaderboardService
	catalogService     *service.CatalogService
	analyticsService   *service.AnalyticsService
}

// NewHandler 创建处理器实例
func NewHandler(svc *Services) *Handler {
	return &Handler{
		accountService:     svc.Account,
		accrualService:     svc.Accrual,
		redemptionService:  svc.Redemption,
		leaderboardService: svc.Leaderboard,
		catalogService:     svc.Catalog,
		analyticsService:   svc.Analytics,
	}
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func pageParams(c *gin.Context) (int, int, bool) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return 0, 0, false
	}
	pageSize, ok := queryInt(c, "page_size", 20)
	if !ok {
		return 0, 0, false
	}
	return page, pageSize, true
}

// ============================================================
// 积分相关接口
// ============================================================

// GetMyPoints 查询当前用户积分和连续打卡
// GET /api/v1/points/me
func (h *Handler) GetMyPoints(c *gin.Context) {
	points, err := h.accountService.GetUserPoints(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, points)
}

// GetLedger 当前用户的积分流水
// GET /api/v1/points/ledger?page=1&page_size=20
func (h *Handler) GetLedger(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}

	entries, total, err := h.accountService.GetLedger(c.Request.Context(), identityOf(c).UserID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, entries, total, page, pageSize)
}

// GetLeaderboard 积分排行榜
// GET /api/v1/points/leaderboard?period=weekly&limit=10&offset=0
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	board, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), limit, offset, c.DefaultQuery("period", service.PeriodAllTime))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, board)
}

// ============================================================
// 奖品和兑换接口
// ============================================================

// ListRewards 可兑换奖品，已登录时附带是否买得起
// GET /api/v1/rewards
func (h *Handler) ListRewards(c *gin.Context) {
	rewards, err := h.catalogService.GetAvailableRewards(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rewards)
}

// RedeemRequest 兑换请求
type RedeemRequest struct {
	RewardID int64 `json:"reward_id" binding:"required,gt=0"`
}

// Redeem 兑换奖品
// POST /api/v1/rewards/redeem
func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.redemptionService.Redeem(c.Request.Context(), identityOf(c).UserID, req.RewardID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ListMyRedemptions 当前用户的兑换记录
// GET /api/v1/rewards/redemptions?page=1&page_size=20
func (h *Handler) ListMyRedemptions(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}

	list, total, err := h.redemptionService.ListUserRedemptions(c.Request.Context(), identityOf(c).UserID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, list, total, page, pageSize)
}

// ============================================================
// 考勤事件接口
// ============================================================

// AttendanceEventRequest 考勤服务推送的打卡事件
type AttendanceEventRequest struct {
	UserID      int64     `json:"user_id" binding:"required,gt=0"`
	EventType   string    `json:"event_type" binding:"required"`
	Timestamp   time.Time `json:"timestamp"`
	ReferenceID string    `json:"reference_id" binding:"required"`
}

// RecordAttendance 考勤事件入口，和 Kafka 消费走同一条发放路径
// POST /api/v1/attendance/events
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req AttendanceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.accrualService.RecordAttendance(c.Request.Context(), &service.AttendanceEvent{
		UserID:      req.UserID,
		EventType:   req.EventType,
		Timestamp:   req.Timestamp,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 管理端接口
// ============================================================

// ListActivities GET /api/v1/admin/activities
func (h *Handler) ListActivities(c *gin.Context) {
	activities, err := h.catalogService.GetPointActivities(c.Request.Context(), adminOf(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, activities)
}

// CreateActivity POST /api/v1/admin/activities
func (h *Handler) CreateActivity(c *gin.Context) {
	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	activity, err := h.catalogService.CreatePointActivity(c.Request.Context(), adminOf(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, activity)
}

// UpdateActivityRequest 修改积分活动
type UpdateActivityRequest struct {
	BasePoints *int64 `json:"base_points" binding:"required"`
	IsActive   *bool  `json:"is_active" binding:"required"`
}

// UpdateActivity PUT /api/v1/admin/activities/:code
func (h *Handler) UpdateActivity(c *gin.Context) {
	var req UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	change, err := h.catalogService.UpdatePointActivity(c.Request.Context(), adminOf(c), c.Param("code"), *req.BasePoints, *req.IsActive)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, change)
}

// ListAllRewards GET /api/v1/admin/rewards
func (h *Handler) ListAllRewards(c *gin.Context) {
	rewards, err := h.catalogService.ListAllRewards(c.Request.Context(), adminOf(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rewards)
}

// CreateReward POST /api/v1/admin/rewards
func (h *Handler) CreateReward(c *gin.Context) {
	var req service.CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.catalogService.CreateReward(c.Request.Context(), adminOf(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, reward)
}

// UpdateReward PUT /api/v1/admin/rewards/:id
func (h *Handler) UpdateReward(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}
	var req service.UpdateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	change, err := h.catalogService.UpdateReward(c.Request.Context(), adminOf(c), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, change)
}

// GetAnalytics GET /api/v1/admin/analytics
func (h *Handler) GetAnalytics(c *gin.Context) {
	stats, err := h.analyticsService.GetPointsAnalytics(c.Request.Context(), adminOf(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, stats)
}

// parseDate 支持 2006-01-02 和 RFC3339，endOfDay 为 true 时纯日期取次日零点（开区间）
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// ListRedemptions 管理端兑换记录
// GET /api/v1/admin/redemptions?status=COMPLETED&user_id=1&reward_id=2&date_from=2026-01-01&date_to=2026-01-31
func (h *Handler) ListRedemptions(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	rewardID, ok := queryInt64(c, "reward_id")
	if !ok {
		return
	}
	dateFrom, err := parseDate(c.Query("date_from"), false)
	if err != nil {
		response.ParamError(c, "date_from 参数错误")
		return
	}
	dateTo, err := parseDate(c.Query("date_to"), true)
	if err != nil {
		response.ParamError(c, "date_to 参数错误")
		return
	}

	filter := model.RedemptionFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		UserID:   userID,
		RewardID: rewardID,
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Page:     page,
		PageSize: pageSize,
	}
	list, total, err := h.redemptionService.GetRedemptions(c.Request.Context(), adminOf(c), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, list, total, page, pageSize)
}

// AnnotateRequest 管理员备注
type AnnotateRequest struct {
	Note string `json:"note"`
}

// AnnotateRedemption PUT /api/v1/admin/redemptions/:no/note
func (h *Handler) AnnotateRedemption(c *gin.Context) {
	var req AnnotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	redemption, err := h.redemptionService.AnnotateRedemption(c.Request.Context(), adminOf(c), c.Param("no"), req.Note)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, redemption)
}

// AwardRequest 管理员手工发放
type AwardRequest struct {
	UserID       int64  `json:"user_id" binding:"required,gt=0"`
	ActivityCode string `json:"activity_code" binding:"required"`
	ReferenceID  string `json:"reference_id" binding:"required"`
	Remark       string `json:"remark"`
}

// AwardPoints POST /api/v1/admin/points/award
func (h *Handler) AwardPoints(c *gin.Context) {
	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.accrualService.AwardPoints(c.Request.Context(), adminOf(c), &service.AccrueRequest{
		UserID:       req.UserID,
		ActivityCode: req.ActivityCode,
		ReferenceID:  req.ReferenceID,
		Remark:       req.Remark,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Reconcile POST /api/v1/admin/points/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.analyticsService.ReconcileNow(c.Request.Context(), adminOf(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}
