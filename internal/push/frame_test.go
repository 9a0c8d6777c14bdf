package push

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"
)

// TestEncodeFrame 测试构建帧
func TestEncodeFrame(t *testing.T) {
	body, _ := json.Marshal(AuthRequest{Token: "test-token", DeviceID: "device-001", Platform: "desktop"})
	frame := EncodeFrame(FrameTypeAuth, body)

	if len(frame) != FrameHeaderSize+len(body) {
		t.Fatalf("帧长度不正确，期望: %d, 实际: %d", FrameHeaderSize+len(body), len(frame))
	}

	length := binary.BigEndian.Uint32(frame[:4])
	if length != uint32(len(body)) {
		t.Errorf("帧头长度字段不正确，期望: %d, 实际: %d", len(body), length)
	}
	if frame[4] != FrameTypeAuth {
		t.Errorf("帧类型不正确，期望: %d, 实际: %d", FrameTypeAuth, frame[4])
	}

	var req AuthRequest
	if err := json.Unmarshal(frame[FrameHeaderSize:], &req); err != nil {
		t.Fatalf("帧体解析失败: %v", err)
	}
	if req.Token != "test-token" {
		t.Errorf("token 不匹配，期望: test-token, 实际: %s", req.Token)
	}
}

// TestReadFrame 测试连续读取多帧
func TestReadFrame(t *testing.T) {
	var buf bytes.Buffer
	env, _ := NewEnvelope("newMessage", map[string]string{"_id": "m1"})
	envBytes, _ := json.Marshal(env)

	WriteFrame(&buf, FrameTypeAuthAck, []byte(`{"code":0,"user_id":"u1","message":"success"}`))
	WriteFrame(&buf, FrameTypeResponse, envBytes)

	frameType, body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("读取认证响应失败: %v", err)
	}
	if frameType != FrameTypeAuthAck {
		t.Errorf("帧类型不正确，期望: %d, 实际: %d", FrameTypeAuthAck, frameType)
	}
	var ack AuthAck
	if err := json.Unmarshal(body, &ack); err != nil || ack.Code != 0 || ack.UserID != "u1" {
		t.Errorf("认证响应不正确: %+v, err: %v", ack, err)
	}

	frameType, body, err = ReadFrame(&buf)
	if err != nil {
		t.Fatalf("读取推送帧失败: %v", err)
	}
	if frameType != FrameTypeResponse {
		t.Errorf("帧类型不正确，期望: %d, 实际: %d", FrameTypeResponse, frameType)
	}
	var got Envelope
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("信封解析失败: %v", err)
	}
	if got.Event != "newMessage" {
		t.Errorf("事件名不正确，期望: newMessage, 实际: %s", got.Event)
	}

	if _, _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("期望 EOF，实际: %v", err)
	}
}

// TestReadFrame_Truncated 测试帧体不完整
func TestReadFrame_Truncated(t *testing.T) {
	frame := EncodeFrame(FrameTypeResponse, []byte("0123456789"))

	if _, _, err := ReadFrame(bytes.NewReader(frame[:8])); err == nil {
		t.Error("帧体不完整时应返回错误")
	}
}

// TestReadFrame_TooLarge 测试超长帧
func TestReadFrame_TooLarge(t *testing.T) {
	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(header[:4], MaxFrameSize+1)
	header[4] = FrameTypeResponse

	if _, _, err := ReadFrame(bytes.NewReader(header)); err == nil {
		t.Error("超长帧应返回错误")
	}
}
