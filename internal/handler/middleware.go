package handler

import (
	"log"
	"strconv"
	"strings"
	"time"

	"pointsystem/internal/auth"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"

	ctxRequestID = "request_id"
	ctxIdentity  = "identity"
	ctxAdmin     = "admin"
)

// RequestIDMiddleware 透传或生成请求ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString(ctxRequestID),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v | %s", err, c.GetString(ctxRequestID))
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-User-ID, X-User-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdentityMiddleware 读取网关注入的用户身份，本服务信任网关，不做认证
// 头缺失或非法时身份为空，由后续中间件决定是否放行
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity auth.Identity
		if raw := c.GetHeader(HeaderUserID); raw != "" {
			if userID, err := strconv.ParseInt(raw, 10, 64); err == nil && userID > 0 {
				identity.UserID = userID
				identity.Role = strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
				if identity.Role == "" {
					identity.Role = auth.RoleUser
				}
			}
		}
		c.Set(ctxIdentity, identity)
		c.Next()
	}
}

// RequireUser 要求已登录
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityOf(c).Authenticated() {
			response.Unauthorized(c, "未登录")
			return
		}
		c.Next()
	}
}

// AdminRequired 校验管理员身份，并把凭证放进上下文供 handler 使用
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := auth.Authorize(identityOf(c))
		if err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxAdmin, admin)
		c.Next()
	}
}

func identityOf(c *gin.Context) auth.Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Identity{}
}

// adminOf 取不到时返回 nil，服务层会拒绝
func adminOf(c *gin.Context) *auth.Admin {
	if v, ok := c.Get(ctxAdmin); ok {
		if admin, ok := v.(*auth.Admin); ok {
			return admin
		}
	}
	return nil
}
