package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Public Deribit endpoints, selectable by network name.
const (
	MainnetURL = "wss://www.deribit.com/ws/api/v2"
	TestnetURL = "wss://test.deribit.com/ws/api/v2"
)

// Networks are the built-in endpoint tables.
var Networks = map[string][]ServiceInstance{
	"mainnet": {{Addr: MainnetURL, Weight: 1, Version: "v2"}},
	"testnet": {{Addr: TestnetURL, Weight: 1, Version: "v2"}},
}

// StaticRegistry is an in-memory Registry. It is used for fixed endpoint
// tables and in tests. TTLs are ignored.
type StaticRegistry struct {
	mu       sync.RWMutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// NewNetworkRegistry serves the named built-in table under serviceName.
func NewNetworkRegistry(network, serviceName string) (*StaticRegistry, error) {
	instances, ok := Networks[network]
	if !ok {
		return nil, fmt.Errorf("registry: unknown network %q", network)
	}
	r := NewStaticRegistry()
	r.services[serviceName] = slices.Clone(instances)
	return r, nil
}

func (r *StaticRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	list := r.services[serviceName]
	list = slices.DeleteFunc(list, func(i ServiceInstance) bool { return i.Addr == instance.Addr })
	r.services[serviceName] = append(list, instance)
	r.notifyLocked(serviceName)
	r.mu.Unlock()
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	r.services[serviceName] = slices.DeleteFunc(r.services[serviceName], func(i ServiceInstance) bool { return i.Addr == addr })
	r.notifyLocked(serviceName)
	r.mu.Unlock()
	return nil
}

func (r *StaticRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.services[serviceName]), nil
}

// Watch emits the current list immediately and again after every change.
func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	ch <- slices.Clone(r.services[serviceName])
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.watchers[serviceName] = slices.DeleteFunc(r.watchers[serviceName], func(c chan []ServiceInstance) bool { return c == ch })
		close(ch)
		r.mu.Unlock()
	}()
	return ch
}

// notifyLocked replaces any unread update with the latest list.
func (r *StaticRegistry) notifyLocked(serviceName string) {
	snapshot := r.services[serviceName]
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(snapshot)
	}
}
