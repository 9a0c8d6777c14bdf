package push

import (
	"fmt"

	"github.com/google/uuid"
	"sudooom.im.client/internal/config"
)

// New 按配置选择推送通道
func New(cfg *config.Config, token, userID string) (Channel, error) {
	switch cfg.Push.Transport {
	case config.TransportWebSocket, "":
		return NewWebSocket(cfg.Push, token), nil
	case config.TransportWebTransport:
		return NewWebTransport(cfg.Push, cfg.QUIC, token, uuid.NewString()), nil
	case config.TransportNATS:
		return NewNATS(cfg.NATS, userID), nil
	default:
		return nil, fmt.Errorf("unknown push transport: %s", cfg.Push.Transport)
	}
}
