package loadbalance

import (
	"sync/atomic"

	"mini-wsrpc/registry"
)

// RoundRobinBalancer hands out instances in order using an atomic counter,
// so concurrent Pick calls never take a lock.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errNoInstances
	}
	index := (b.counter.Add(1) - 1) % uint64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return RoundRobin
}
