package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-reqrep/loadbalance"
	"mini-reqrep/message"
	"mini-reqrep/registry"
	"mini-reqrep/server"
)

// Requires a running etcd; set ETCD_ENDPOINT (e.g. localhost:2379) to enable.
func TestMultiServerWithEtcd(t *testing.T) {
	endpoint := os.Getenv("ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skip("ETCD_ENDPOINT not set")
	}

	reg, err := registry.NewEtcdRegistry([]string{endpoint}, 2*time.Second)
	require.NoError(t, err)
	defer reg.Close()

	ports := []int{9521, 9522, 9523}
	for _, port := range ports {
		serve(t, port, okHandler, server.WithRegistry(reg, "echo-integration", "", 10))
	}

	cli := New(WithTimeout(5*time.Second), WithBalancer(&loadbalance.WeightedRandomBalancer{}))
	defer cli.Close()
	require.NoError(t, cli.ConnectRegistry(context.Background(), reg, "echo-integration"))
	assert.Len(t, cli.Peers(), len(ports))

	for i := 0; i < 9; i++ {
		reply, err := cli.Send(context.Background(), map[string]any{"n": float64(i)}, true)
		require.NoError(t, err)

		var answered bool
		for _, port := range ports {
			if code, ok := message.StatusOf(reply, port); ok {
				assert.Equal(t, message.StatusOK, code)
				answered = true
			}
		}
		assert.True(t, answered, "reply %v names no known port", reply)
	}
}
