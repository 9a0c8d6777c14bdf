package model

// KeyKind 消息标识类型
type KeyKind uint8

const (
	KeyPending   KeyKind = iota + 1 // 本地占位，等待服务端确认
	KeyConfirmed                    // 服务端已分配 ID
)

// Key 消息标识：Pending(tempId) 或 Confirmed(serverId)
type Key struct {
	Kind KeyKind
	ID   string
}

// PendingKey 创建占位标识
func PendingKey(tempID string) Key {
	return Key{Kind: KeyPending, ID: tempID}
}

// ConfirmedKey 创建已确认标识
func ConfirmedKey(id string) Key {
	return Key{Kind: KeyConfirmed, ID: id}
}

// IsPending 是否为未确认的占位消息
func (k Key) IsPending() bool {
	return k.Kind == KeyPending
}

func (k Key) String() string {
	if k.IsPending() {
		return "pending:" + k.ID
	}
	return k.ID
}
