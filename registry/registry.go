// Package registry keeps track of where websocket endpoints live.
//
// Servers register themselves under a service name; clients discover the
// current instance list (and optionally watch it) before dialing one.
package registry

import (
	"context"
	"errors"
)

// ErrNoInstances is returned when a service has no registered endpoint.
var ErrNoInstances = errors.New("registry: no instances available")

// ServiceInstance is one reachable endpoint of a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`   // ws:// or wss:// URL
	Weight  int    `json:"weight"` // weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list on every change until ctx ends.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
