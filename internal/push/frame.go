package push

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// 帧头大小：4 bytes length + 1 byte frame type
	FrameHeaderSize = 5

	// 帧类型
	FrameTypeAuth    byte = 1 // 认证请求
	FrameTypeRequest byte = 2 // 客户端事件

	// 服务端帧类型
	FrameTypeAuthAck  byte = 3 // 认证响应
	FrameTypeResponse byte = 4 // 推送事件

	// MaxFrameSize 单帧最大长度
	MaxFrameSize = 4 << 20
)

// EncodeFrame 构建帧：header + body
func EncodeFrame(frameType byte, body []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	frame[4] = frameType
	copy(frame[FrameHeaderSize:], body)
	return frame
}

// WriteFrame 写入一帧
func WriteFrame(w io.Writer, frameType byte, body []byte) error {
	_, err := w.Write(EncodeFrame(frameType, body))
	return err
}

// ReadFrame 读取一帧
func ReadFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("failed to read body: %w", err)
	}
	return header[4], body, nil
}

// AuthRequest 认证帧内容
type AuthRequest struct {
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
}

// AuthAck 认证响应
type AuthAck struct {
	Code    int    `json:"code"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}
