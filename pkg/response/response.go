package response

import (
	"errors"
	"net/http"

	"pointsystem/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeInsufficientBalance = 1001
	CodeOutOfStock          = 1002
	CodeRewardInactive      = 1003
	CodeActivityInactive    = 1004
	CodeActivityExists      = 1005
	CodeBusy                = 1006
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"` // apperr.Code，便于调用方按类型处理
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Page 分页列表
func Page(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// Unauthorized 未登录和无权限用 HTTP 状态码区分，网关据此处理
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: CodeUnauthorized, Message: message, Reason: apperr.ErrUnauthorized.Code})
}

func Forbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Response{Code: CodeForbidden, Message: message, Reason: apperr.ErrForbidden.Code})
}

var businessCodes = map[string]int{
	apperr.ErrInsufficientBalance.Code: CodeInsufficientBalance,
	apperr.ErrOutOfStock.Code:          CodeOutOfStock,
	apperr.ErrRewardInactive.Code:      CodeRewardInactive,
	apperr.ErrInactiveActivity.Code:    CodeActivityInactive,
	apperr.ErrActivityExists.Code:      CodeActivityExists,
	apperr.ErrBusy.Code:                CodeBusy,
}

// FromError 把服务层错误转换成统一响应
func FromError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ServerError(c, apperr.Message(err))
		return
	}

	switch ae.Kind {
	case apperr.KindUnauthorized:
		Unauthorized(c, ae.Message)
		return
	case apperr.KindForbidden:
		Forbidden(c, ae.Message)
		return
	}

	code := CodeServerError
	switch ae.Kind {
	case apperr.KindValidation:
		code = CodeParamError
	case apperr.KindNotFound:
		code = CodeNotFound
	case apperr.KindConflict:
		code = CodeBusinessError
		if bc, ok := businessCodes[ae.Code]; ok {
			code = bc
		}
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: ae.Message, Reason: ae.Code})
}
