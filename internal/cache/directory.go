package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"sudooom.im.client/internal/config"
	"sudooom.im.client/internal/model"
)

// NewClient 按配置创建 Redis 客户端，Addr 为空时返回 nil
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// DirectoryCache 会话列表缓存（基于 Redis），用于启动时先展示上次的列表
type DirectoryCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

// NewDirectoryCache 创建会话列表缓存
func NewDirectoryCache(redisClient *redis.Client, ttl time.Duration) *DirectoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DirectoryCache{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      slog.Default(),
	}
}

// SaveChats 用服务端列表整体替换缓存
func (c *DirectoryCache) SaveChats(ctx context.Context, userID string, chats []model.ChatSummary) error {
	idxKey := BuildChatIndexKey(userID)

	old, err := c.redisClient.ZRange(ctx, idxKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := c.redisClient.TxPipeline()
	for _, chatID := range old {
		pipe.Del(ctx, BuildChatKey(userID, chatID))
	}
	pipe.Del(ctx, idxKey)

	for _, s := range chats {
		if err := c.queueChat(ctx, pipe, userID, s); err != nil {
			return err
		}
	}
	if len(chats) > 0 {
		pipe.Expire(ctx, idxKey, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateChat 更新单个会话摘要
func (c *DirectoryCache) UpdateChat(ctx context.Context, userID string, summary model.ChatSummary) error {
	pipe := c.redisClient.Pipeline()
	if err := c.queueChat(ctx, pipe, userID, summary); err != nil {
		return err
	}
	pipe.Expire(ctx, BuildChatIndexKey(userID), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *DirectoryCache) queueChat(ctx context.Context, pipe redis.Pipeliner, userID string, s model.ChatSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	chatKey := BuildChatKey(userID, s.Chat.ID)
	updatedAt := s.Chat.UpdatedAt.UnixMilli()

	pipe.HSet(ctx, chatKey, "data", data, "unseen_count", s.Chat.UnseenCount, "update_at", updatedAt)
	pipe.Expire(ctx, chatKey, c.ttl)
	pipe.ZAdd(ctx, BuildChatIndexKey(userID), redis.Z{Score: float64(updatedAt), Member: s.Chat.ID})
	return nil
}

// LoadChats 读取缓存的会话列表（按更新时间倒序）
func (c *DirectoryCache) LoadChats(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	idxKey := BuildChatIndexKey(userID)

	members, err := c.redisClient.ZRevRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []model.ChatSummary{}, nil
	}

	// Pipeline 批量获取会话详情
	pipe := c.redisClient.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, chatID := range members {
		cmds[i] = pipe.HGet(ctx, BuildChatKey(userID, chatID), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	chats := make([]model.ChatSummary, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// 详情已过期但索引仍在
			continue
		}
		var s model.ChatSummary
		if err := json.Unmarshal(data, &s); err != nil {
			c.logger.Warn("Failed to decode cached chat", "chat_id", members[i], "error", err)
			continue
		}
		chats = append(chats, s)
	}
	return chats, nil
}

// SaveUsers 缓存用户列表
func (c *DirectoryCache) SaveUsers(ctx context.Context, userID string, users []model.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, BuildUsersKey(userID), data, c.ttl).Err()
}

// LoadUsers 读取缓存的用户列表，未缓存时返回空列表
func (c *DirectoryCache) LoadUsers(ctx context.Context, userID string) ([]model.User, error) {
	data, err := c.redisClient.Get(ctx, BuildUsersKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []model.User{}, nil
	}
	if err != nil {
		return nil, err
	}

	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Clear 删除某个用户的全部缓存（登出时调用）
func (c *DirectoryCache) Clear(ctx context.Context, userID string) error {
	var keys []string
	iter := c.redisClient.Scan(ctx, 0, buildUserPattern(userID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redisClient.Del(ctx, keys...).Err()
}

// Ping 检查 Redis 连接
func (c *DirectoryCache) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}
