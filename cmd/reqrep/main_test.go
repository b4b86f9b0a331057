package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mini-reqrep/config"
	"mini-reqrep/endpoint"
	"mini-reqrep/signals"
	"mini-reqrep/transport"
)

// syncBuffer guards the buffer the server goroutine prints into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T, cfg *config.Config, out *syncBuffer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, cfg, zap.NewNop(), out)
	}()
	time.Sleep(200 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
}

func TestServerAndClient(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 9601
	cfg.Client.Host = "127.0.0.1"
	cfg.Client.Ports = []int{9601}
	cfg.Client.Requests = 3

	out := &syncBuffer{}
	startServer(t, cfg, out)

	require.NoError(t, runClient(context.Background(), cfg, zap.NewNop()))
	assert.Equal(t, 3, strings.Count(out.String(), `"Hello"`))
}

func TestClientFanOutOverFrameTransport(t *testing.T) {
	first := config.Default()
	first.Transport.Kind = "frame"
	first.Server.Port = 9602
	second := config.Default()
	second.Transport.Kind = "frame"
	second.Server.Port = 9603

	out1, out2 := &syncBuffer{}, &syncBuffer{}
	startServer(t, first, out1)
	startServer(t, second, out2)

	cfg := config.Default()
	cfg.Transport.Kind = "frame"
	cfg.Client.Host = "127.0.0.1"
	cfg.Client.Ports = []int{9602, 9603}
	cfg.Client.Requests = 4
	cfg.Client.Message = "ping"

	require.NoError(t, runClient(context.Background(), cfg, zap.NewNop()))
	assert.Equal(t, 2, strings.Count(out1.String(), `"ping"`))
	assert.Equal(t, 2, strings.Count(out2.String(), `"ping"`))
}

func TestClientTimeoutExitsWithAlarmCode(t *testing.T) {
	srvCfg := config.Default()
	srvCfg.Server.Port = 9604
	srvCfg.Server.Handler = config.HandlerDefault
	srvCfg.Server.ProcessingDelay = time.Second
	startServer(t, srvCfg, &syncBuffer{})

	cfg := config.Default()
	cfg.Client.Host = "127.0.0.1"
	cfg.Client.Ports = []int{9604}
	cfg.Client.Timeout = 100 * time.Millisecond

	err := runClient(context.Background(), cfg, zap.NewNop())

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, signals.ExitCode(signals.Alarm), exitErr.code)
	assert.True(t, errors.Is(err, endpoint.ErrTimeout))
}

func TestClientConnectionRefused(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.Kind = "frame"
	cfg.Client.Host = "127.0.0.1"
	cfg.Client.Ports = []int{9699}

	err := runClient(context.Background(), cfg, zap.NewNop())

	var connErr *transport.ConnectionError
	require.ErrorAs(t, err, &connErr)
	var exitErr *exitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "server")
	assert.Contains(t, out.String(), "client")
}

func TestRootCommandRejectsUnknownRoutine(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"bogus"})

	assert.Error(t, cmd.Execute())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(map[string]any{}))
	assert.True(t, isEmpty(""))
	assert.False(t, isEmpty(map[string]any{"5555:status": 0.0}))
	assert.False(t, isEmpty(0.0))
}
