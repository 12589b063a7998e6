package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// 网关自身产生的状态码（其余状态码来自 dispatch.StatusOf）
const (
	StatusBadRequest    = "bad_request"
	StatusFrameTooLarge = "frame_too_large"
)

var (
	ErrFrameTooLarge = errors.New("gateway: frame too large")
	ErrMissingType   = errors.New("gateway: missing message type")
)

// Frame 上行请求帧，一行一个 JSON 对象
type Frame struct {
	Type     string          `json:"type"`
	PlayerID int64           `json:"player_id"`
	Seq      uint64          `json:"seq"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Reply 下行响应帧
type Reply struct {
	Seq     uint64 `json:"seq"`
	Status  string `json:"status"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DecodeFrame 解析一行请求
func DecodeFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("gateway: decode frame: %w", err)
	}
	if f.Type == "" {
		return f, ErrMissingType
	}
	if f.PlayerID < 0 {
		return f, fmt.Errorf("gateway: negative player_id %d", f.PlayerID)
	}
	return f, nil
}

// EncodeReply 编码响应并追加换行
func EncodeReply(r Reply) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// LineSplitter 把 TCP 字节流切分为以 '\n' 结尾的行
type LineSplitter struct {
	buf bytes.Buffer
	max int
}

// NewLineSplitter 创建切分器；单行超过 max 字节时返回 ErrFrameTooLarge
func NewLineSplitter(max int) *LineSplitter { return &LineSplitter{max: max} }

// Feed 追加数据并返回所有完整的行（不含换行，已去除首尾空白，空行被跳过）
func (s *LineSplitter) Feed(p []byte) ([][]byte, error) {
	s.buf.Write(p)
	var lines [][]byte
	for {
		data := s.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if s.buf.Len() > s.max {
				s.buf.Reset()
				return lines, ErrFrameTooLarge
			}
			return lines, nil
		}
		if i > s.max {
			s.buf.Reset()
			return lines, ErrFrameTooLarge
		}
		line := bytes.TrimSpace(data[:i])
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		s.buf.Next(i + 1)
	}
}
