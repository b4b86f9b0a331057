package loadbalance

import (
	"sync/atomic"

	"mini-reqrep/registry"
)

// RoundRobinBalancer cycles through instances in order, starting at the first.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (int, error) {
	if len(instances) == 0 {
		return 0, ErrNoInstances
	}
	n := b.counter.Add(1) - 1
	return int(n % uint64(len(instances))), nil
}

func (b *RoundRobinBalancer) Name() string {
	return "round_robin"
}
