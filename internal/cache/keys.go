package cache

import "fmt"

const (
	// KeyPrefix 客户端缓存 Key 前缀
	KeyPrefix = "zelo:client:"
)

// BuildChatKey 单个会话摘要
// Key: zelo:client:{userId}:chat:{chatId}
func BuildChatKey(userID, chatID string) string {
	return fmt.Sprintf("%s%s:chat:%s", KeyPrefix, userID, chatID)
}

// BuildChatIndexKey 会话索引（ZSet，score 为 updatedAt 毫秒）
// Key: zelo:client:{userId}:chats
func BuildChatIndexKey(userID string) string {
	return fmt.Sprintf("%s%s:chats", KeyPrefix, userID)
}

// BuildUsersKey 用户列表
// Key: zelo:client:{userId}:users
func BuildUsersKey(userID string) string {
	return fmt.Sprintf("%s%s:users", KeyPrefix, userID)
}

// buildUserPattern 某个用户的全部缓存 Key
func buildUserPattern(userID string) string {
	return fmt.Sprintf("%s%s:*", KeyPrefix, userID)
}
