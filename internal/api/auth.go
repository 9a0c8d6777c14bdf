package api

import (
	"context"
	"net/http"

	"sudooom.im.client/internal/model"
)

// MessageResponse 只带提示信息的响应
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthResponse 登录/资料更新响应，包含新的 Token
type AuthResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    model.User `json:"user"`
}

// Login 请求发送验证码
func (c *Client) Login(ctx context.Context, email string) (string, error) {
	var resp MessageResponse
	err := c.doJSON(ctx, http.MethodPost, c.userURL+"/api/v1/login", map[string]string{
		"email": email,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Verify 使用验证码换取 Token
func (c *Client) Verify(ctx context.Context, email, otp string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, c.userURL+"/api/v1/verify", map[string]string{
		"email": email,
		"otp":   otp,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me 获取当前用户资料
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var resp struct {
		User model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL+"/api/v1/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Users 获取所有可联系用户
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var resp struct {
		Users []model.User `json:"users"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userURL+"/api/v1/user/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// UpdateName 修改昵称
func (c *Client) UpdateName(ctx context.Context, name string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, c.userURL+"/api/v1/update/user", map[string]string{
		"name": name,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateAvatar 上传头像
func (c *Client) UpdateAvatar(ctx context.Context, path string) (*AuthResponse, error) {
	form := newForm()
	if err := form.file("avatar", path); err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := c.doForm(ctx, c.userURL+"/api/v1/update/avatar", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
