// Package loadbalance picks which endpoint a client dials.
//
// Three strategies are implemented:
//   - RoundRobin:      spread new connections evenly
//   - WeightedRandom:  endpoints with different capacity
//   - ConsistentHash:  the same client identity keeps landing on the same endpoint
package loadbalance

import (
	"errors"
	"fmt"
	"os"

	"mini-wsrpc/registry"
)

// Strategy names accepted by ByName.
const (
	RoundRobin     = "round_robin"
	WeightedRandom = "weighted_random"
	ConsistentHash = "consistent_hash"
)

var errNoInstances = fmt.Errorf("loadbalance: %w", registry.ErrNoInstances)

// Balancer selects one instance from the currently known list.
// Pick is called from many goroutines and must be safe for concurrent use.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ByName builds a balancer from its configured name. ConsistentHash is keyed
// by the host name.
func ByName(name string) (Balancer, error) {
	switch name {
	case RoundRobin, "":
		return &RoundRobinBalancer{}, nil
	case WeightedRandom:
		return &WeightedRandomBalancer{}, nil
	case ConsistentHash:
		host, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		return NewConsistentHashBalancer(host), nil
	default:
		return nil, errors.New("loadbalance: unknown strategy " + name)
	}
}
