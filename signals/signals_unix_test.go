//go:build unix

package signals

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartDeliversRealSignal(t *testing.T) {
	received := make(chan os.Signal, 1)
	c, err := New([]os.Signal{syscall.SIGUSR1}, []Handler{func(sig os.Signal) error {
		received <- sig
		return nil
	}})
	require.NoError(t, err)

	c.Start()
	defer c.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case sig := <-received:
		require.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not dispatched")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c, err := New([]os.Signal{syscall.SIGUSR2}, nil)
	require.NoError(t, err)

	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}
