package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/actions"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		App:     cfgpkg.AppConfig{Name: "game-server", Env: "test", ServerID: "bootstrap-test"},
		HTTP:    cfgpkg.HTTPConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second},
		TCP:     cfgpkg.TCPConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Minute, WriteTimeout: time.Second},
		Gateway: cfgpkg.GatewayConfig{MaxConnections: 10, AcquireTimeout: 100 * time.Millisecond, RatePerSec: 100, Burst: 100, MaxFrameBytes: 4096},
		Metrics: cfgpkg.MetricsConfig{Enable: true, Path: "/metrics"},
		Lock:    cfgpkg.LockConfig{Backend: cfgpkg.LockBackendMemory, Namespace: "player", TTL: 30 * time.Second, RetryInterval: 20 * time.Millisecond},
	}
}

// dupProvider 与内置动作冲突的消息类型
type dupProvider struct{}

func (dupProvider) Descriptors() []action.Descriptor {
	return []action.Descriptor{{
		Owner:        "Dup.Ping",
		MessageTypes: []string{actions.TypePing},
		Handle:       func(context.Context, action.Message) (action.Message, error) { return nil, nil },
	}}
}

func TestRunContext_StartAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- RunContext(ctx, testConfig(), zap.NewNop(), nil) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}
}

func TestRunContext_DuplicateMessageTypeAbortsStartup(t *testing.T) {
	err := RunContext(context.Background(), testConfig(), zap.NewNop(), []action.Provider{dupProvider{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, action.ErrConfiguration))

	var cerr *action.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, actions.TypePing, cerr.MessageType)
}

func TestRunContext_RedisBackendWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.Backend = cfgpkg.LockBackendRedis
	err := RunContext(context.Background(), cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}
