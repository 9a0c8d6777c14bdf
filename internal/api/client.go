package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
)

// Client 用户服务与聊天服务的 HTTP 客户端
type Client struct {
	userURL    string
	chatURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string

	logger *slog.Logger
}

// New 创建 HTTP 客户端
func New(services config.ServicesConfig, rl config.RateLimitConfig) *Client {
	timeout := services.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	if rl.RPS > 0 {
		limit = rate.Limit(rl.RPS)
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		userURL:    strings.TrimRight(services.UserURL, "/"),
		chatURL:    strings.TrimRight(services.ChatURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     slog.Default(),
	}
}

// SetToken 设置 Bearer Token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token 当前 Token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// errorBody 服务端错误响应
type errorBody struct {
	Message string `json:"message"`
}

// doJSON 发送 JSON 请求并解析响应
func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return imErrors.ErrInvalidParams.Wrap(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return imErrors.ErrInvalidParams.Wrap(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do 发送请求，按状态码映射错误
func (c *Client) do(req *http.Request, out any) error {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return imErrors.ErrTooManyRequest.Wrap(err)
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"error", err)
		return imErrors.ErrNetwork.Wrap(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return imErrors.ErrNetwork.Wrap(err)
	}

	c.logger.Debug("Request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return imErrors.ErrServerError.Wrap(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// HTTPError 非 2xx 响应
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

func statusError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	httpErr := &HTTPError{Status: status, Message: eb.Message}

	switch {
	case status == http.StatusUnauthorized:
		return imErrors.ErrTokenInvalid.Wrap(httpErr)
	case status == http.StatusNotFound:
		return imErrors.ErrNotFound.Wrap(httpErr)
	case status == http.StatusTooManyRequests:
		return imErrors.ErrTooManyRequest.Wrap(httpErr)
	case status == http.StatusBadRequest:
		return imErrors.ErrInvalidParams.Wrap(httpErr)
	default:
		return imErrors.ErrServerError.Wrap(httpErr)
	}
}

// ServerMessage 从错误中取出服务端返回的 message
func ServerMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return ""
}

// PingUserService 检查用户服务是否可达，收到任何 HTTP 响应即视为可达
func (c *Client) PingUserService(ctx context.Context) error {
	return c.ping(ctx, c.userURL)
}

// PingChatService 检查聊天服务是否可达
func (c *Client) PingChatService(ctx context.Context) error {
	return c.ping(ctx, c.chatURL)
}

func (c *Client) ping(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return imErrors.ErrNetwork.Wrap(err)
	}
	resp.Body.Close()
	return nil
}
