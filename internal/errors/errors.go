package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理客户端错误，包含错误码和用户可见消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// IsAuth 是否为认证类错误（需要强制登出）
func IsAuth(err error) bool {
	return Is(err, ErrTokenInvalid) || Is(err, ErrTokenExpired) || Is(err, ErrNotLoggedIn)
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeInvalidOTP   = 10002
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004
	CodeNotLoggedIn  = 10006

	// 参数/数据相关 11000-11999
	CodeUserNotFound  = 11001
	CodeInvalidParams = 11002
	CodeNotFound      = 11003

	// 聊天相关 13000-13999
	CodeEmptyDraft           = 13001
	CodeSendFailed           = 13002
	CodeNoOpenChat           = 13003
	CodeGroupNameRequired    = 13004
	CodeGroupMembersRequired = 13005

	// 系统错误 50000-50999
	CodeServerError     = 50001
	CodeNetwork         = 50002
	CodeTooManyRequest  = 50003
	CodePushUnavailable = 50004
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrInvalidOTP   = NewError(CodeInvalidOTP, "验证码错误")
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token 已过期")
	ErrNotLoggedIn  = NewError(CodeNotLoggedIn, "未登录")
)

// 参数/数据相关
var (
	ErrUserNotFound  = NewError(CodeUserNotFound, "用户不存在")
	ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")
	ErrNotFound      = NewError(CodeNotFound, "资源不存在")
)

// 聊天相关
var (
	ErrEmptyDraft           = NewError(CodeEmptyDraft, "消息内容不能为空")
	ErrSendFailed           = NewError(CodeSendFailed, "消息发送失败")
	ErrNoOpenChat           = NewError(CodeNoOpenChat, "未打开任何会话")
	ErrGroupNameRequired    = NewError(CodeGroupNameRequired, "群名称不能为空")
	ErrGroupMembersRequired = NewError(CodeGroupMembersRequired, "至少选择一名群成员")
)

// 系统相关
var (
	ErrServerError     = NewError(CodeServerError, "服务器内部错误")
	ErrNetwork         = NewError(CodeNetwork, "网络不可用，请检查连接")
	ErrTooManyRequest  = NewError(CodeTooManyRequest, "请求过于频繁，请稍后再试")
	ErrPushUnavailable = NewError(CodePushUnavailable, "实时通道不可用")
)
