package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"mini-wsrpc/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps a key (normally the client's identity) onto a
// hash ring of instances. The same key keeps mapping to the same instance
// while the instance set is stable, and only a small share of keys move when
// an instance joins or leaves.
//
// Each real instance is placed on the ring as 100 virtual nodes so a handful
// of instances still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu    sync.Mutex
	ring  []uint32                             // sorted virtual node hashes
	nodes map[uint32]*registry.ServiceInstance // virtual node hash → instance
	set   string                               // fingerprint of the instances on the ring
}

// NewConsistentHashBalancer creates a balancer whose Pick always hashes key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: defaultReplicas,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
}

func (b *ConsistentHashBalancer) addLocked(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	slices.Sort(b.ring)
}

// Pick rebuilds the ring if the instance list changed since the last call,
// then returns the instance owning the balancer's key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if set := fingerprint(instances); set != b.set {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]*registry.ServiceInstance, len(instances)*b.replicas)
		for i := range instances {
			inst := instances[i]
			b.addLocked(&inst)
		}
		b.set = set
	}
	return b.lookupLocked(b.key)
}

// PickKey returns the instance owning key on the current ring.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookupLocked(key)
}

func (b *ConsistentHashBalancer) lookupLocked(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, errNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	// first virtual node clockwise from the key
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return ConsistentHash
}

func fingerprint(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, "\n")
}
