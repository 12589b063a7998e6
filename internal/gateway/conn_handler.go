package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/dispatch"
	"github.com/taoyao-code/game-server/internal/metrics"
	"github.com/taoyao-code/game-server/internal/tcpserver"
)

// Dispatcher 请求调度能力（由 dispatch.Dispatcher 实现）
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (any, error)
}

// Conn 网关所需的连接能力（由 tcpserver.ConnContext 实现）
type Conn interface {
	Context() context.Context
	SetOnRead(func([]byte))
	Write([]byte) error
	Close() error
}

// Handler 把连接上的请求帧交给调度器，并回写响应
type Handler struct {
	d             Dispatcher
	maxFrameBytes int
	logger        *zap.Logger
	appm          *metrics.AppMetrics

	inflight sync.WaitGroup
}

// NewHandler 创建网关处理器
func NewHandler(d Dispatcher, maxFrameBytes int, appm *metrics.AppMetrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{d: d, maxFrameBytes: maxFrameBytes, logger: logger, appm: appm}
}

// ConnHandler 适配 tcpserver.Server.SetConnHandler
func (h *Handler) ConnHandler() func(*tcpserver.ConnContext) {
	return func(cc *tcpserver.ConnContext) { h.Bind(cc) }
}

// Bind 在连接上安装读回调。
// 每个请求帧在独立 goroutine 中调度：同一玩家的写操作由玩家锁串行化，
// 只读请求不会被同连接上较慢的写请求阻塞。响应按完成顺序返回，客户端用 seq 关联。
func (h *Handler) Bind(c Conn) {
	splitter := NewLineSplitter(h.maxFrameBytes)

	c.SetOnRead(func(p []byte) {
		lines, err := splitter.Feed(p)
		for _, line := range lines {
			h.inflight.Add(1)
			go func(line []byte) {
				defer h.inflight.Done()
				h.handleLine(c, line)
			}(line)
		}
		if errors.Is(err, ErrFrameTooLarge) {
			if h.appm != nil {
				h.appm.GatewayRejected.WithLabelValues(StatusFrameTooLarge).Inc()
			}
			h.logger.Warn("gateway frame too large, closing connection", zap.Int("max_bytes", h.maxFrameBytes))
			h.reply(c, Reply{Status: StatusFrameTooLarge, Error: err.Error()})
			_ = c.Close()
		}
	})
}

// Wait 等待已接收请求帧的调度全部结束（其持有的玩家锁随之释放）。
// 应在 TCP 网关停止读取之后调用，ctx 结束时返回 ctx.Err()。
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) handleLine(c Conn, line []byte) {
	f, err := DecodeFrame(line)
	if err != nil {
		h.reply(c, Reply{Seq: f.Seq, Status: StatusBadRequest, Error: err.Error()})
		return
	}

	req := dispatch.Request{MessageType: f.Type, PlayerID: f.PlayerID}
	if len(f.Payload) > 0 {
		req.Payload = f.Payload
	}
	resp, err := h.d.Dispatch(c.Context(), req)
	if err != nil {
		h.logger.Debug("gateway request failed",
			zap.String("message_type", f.Type),
			zap.Int64("player_id", f.PlayerID),
			zap.Uint64("seq", f.Seq),
			zap.Error(err))
		h.reply(c, Reply{Seq: f.Seq, Status: dispatch.StatusOf(err), Payload: resp, Error: err.Error()})
		return
	}
	h.reply(c, Reply{Seq: f.Seq, Status: dispatch.StatusOK, Payload: resp})
}

func (h *Handler) reply(c Conn, r Reply) {
	b, err := EncodeReply(r)
	if err != nil {
		h.logger.Error("gateway encode reply failed", zap.Uint64("seq", r.Seq), zap.Error(err))
		b, _ = EncodeReply(Reply{Seq: r.Seq, Status: dispatch.StatusBusinessError, Error: "encode reply: " + err.Error()})
	}
	if err := c.Write(b); err != nil {
		h.logger.Debug("gateway write reply failed", zap.Uint64("seq", r.Seq), zap.Error(err))
	}
}
