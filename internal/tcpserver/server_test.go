package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

func startEchoServer(t *testing.T, cfg cfgpkg.TCPConfig, limiter *ConnectionLimiter) (*Server, *atomic.Int64) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := New(cfg, nil)
	s.SetLimiters(limiter, nil)

	var rejected atomic.Int64
	s.SetMetricsCallbacks(nil, nil, func(string) { rejected.Add(1) }, nil)
	s.SetConnHandler(func(cc *ConnContext) {
		cc.SetOnRead(func(p []byte) { _ = cc.Write(p) })
	})
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, &rejected
}

func TestServer_Echo(t *testing.T) {
	s, _ := startEchoServer(t, cfgpkg.TCPConfig{}, nil)

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestServer_ConnectionLimit(t *testing.T) {
	s, rejected := startEchoServer(t, cfgpkg.TCPConfig{}, NewConnectionLimiter(1, 20*time.Millisecond))

	first, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	// 确认第一个连接已被接受
	_, err = first.Write([]byte("x"))
	require.NoError(t, err)
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(first, make([]byte, 1))
	require.NoError(t, err)

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = second.Read(make([]byte, 1))
	assert.Error(t, err, "rejected connection should be closed by server")
	assert.Eventually(t, func() bool { return rejected.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_IdleConnectionClosed(t *testing.T) {
	s, _ := startEchoServer(t, cfgpkg.TCPConfig{ReadTimeout: 100 * time.Millisecond}, nil)

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Read(make([]byte, 1))
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "server should close idle connection before client deadline")
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	s := New(cfgpkg.TCPConfig{Addr: "127.0.0.1:0"}, nil)
	opened := make(chan *ConnContext, 1)
	s.SetConnHandler(func(cc *ConnContext) { opened <- cc })
	require.NoError(t, s.Start())

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	var cc *ConnContext
	select {
	case cc = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case <-cc.Done():
	default:
		t.Fatal("connection context not cancelled")
	}
}
