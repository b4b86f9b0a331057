package loadbalance

import (
	"math/rand/v2"

	"mini-reqrep/registry"
)

// WeightedRandomBalancer picks instances proportionally to their Weight.
// Non-positive weights count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (int, error) {
	if len(instances) == 0 {
		return 0, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += weight(v)
	}

	r := rand.IntN(totalWeight)
	for i, v := range instances {
		r -= weight(v)
		if r < 0 {
			return i, nil
		}
	}
	return len(instances) - 1, nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "weighted_random"
}

func weight(inst registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}
