package auth

import (
	"pointsystem/internal/apperr"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Identity 由身份服务（网关）提供的调用方信息，本服务不做认证，只做授权
type Identity struct {
	UserID int64
	Role   string
}

func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

// Admin 管理员能力凭证
// 只能通过 Authorize 获得，管理端服务方法以它作为入参，不再各自判断角色
type Admin struct {
	userID int64
}

func (a *Admin) UserID() int64 {
	if a == nil {
		return 0
	}
	return a.userID
}

// Authorize 校验调用方是否为管理员
func Authorize(identity Identity) (*Admin, error) {
	if !identity.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	if identity.Role != RoleAdmin {
		return nil, apperr.ErrForbidden
	}
	return &Admin{userID: identity.UserID}, nil
}

// Require 管理端服务方法入口处调用，nil 凭证视为未认证
func Require(admin *Admin) error {
	if admin == nil || admin.userID <= 0 {
		return apperr.ErrUnauthorized
	}
	return nil
}
