// Package loadbalance decides which connected peer receives the next request.
//
// A client connected to several ports holds one socket per peer and asks its Balancer
// before every send:
//   - RoundRobin:      the n-th send (from zero) goes to peer n mod len(peers)
//   - WeightedRandom:  peers are picked with probability proportional to Weight
package loadbalance

import (
	"fmt"

	"mini-reqrep/registry"
)

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick returns the index of the chosen instance. Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (int, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

var ErrNoInstances = fmt.Errorf("no instances available")

// Get returns a fresh balancer for a configured strategy name.
func Get(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
