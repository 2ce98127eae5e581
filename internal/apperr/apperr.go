package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误分类，调用方据此映射成自己的传输层错误
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation"
	default:
		return "Internal"
	}
}

// Error 业务错误
// Code 是稳定的机器可读标识，Message 面向用户
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同 Code 的错误视为同一种错误，这样带参数的副本也能匹配哨兵错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidParam = newError(KindValidation, "INVALID_PARAM", "参数错误")

	ErrUnauthorized = newError(KindUnauthorized, "UNAUTHORIZED", "未登录")
	ErrForbidden    = newError(KindForbidden, "FORBIDDEN", "无权限执行该操作")

	ErrUnknownActivity     = newError(KindNotFound, "UNKNOWN_ACTIVITY", "积分活动不存在")
	ErrRewardNotFound      = newError(KindNotFound, "REWARD_NOT_FOUND", "奖品不存在")
	ErrRedemptionNotFound  = newError(KindNotFound, "REDEMPTION_NOT_FOUND", "兑换记录不存在")
	ErrActivityExists      = newError(KindConflict, "ACTIVITY_EXISTS", "积分活动已存在")
	ErrInactiveActivity    = newError(KindConflict, "INACTIVE_ACTIVITY", "积分活动已停用")
	ErrRewardInactive      = newError(KindConflict, "REWARD_INACTIVE", "奖品已下架")
	ErrOutOfStock          = newError(KindConflict, "OUT_OF_STOCK", "奖品库存不足")
	ErrInsufficientBalance = newError(KindConflict, "INSUFFICIENT_BALANCE", "积分不足")
	ErrBusy                = newError(KindConflict, "BUSY", "系统繁忙，请稍后重试")
)

// Validation 生成带具体原因的参数错误，errors.Is(err, ErrInvalidParam) 仍成立
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrInvalidParam.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal 包装存储层等非预期错误
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "服务器内部错误", Err: err}
}

// Wrap 给哨兵错误附加底层原因
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// KindOf 返回错误分类，非 *Error 一律视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message 返回面向用户的信息，内部错误不暴露细节
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "服务器内部错误"
}
