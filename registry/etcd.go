package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/mini-wsrpc/"

// EtcdRegistry stores instances in etcd:
//
//	Key:   /mini-wsrpc/{service}/{escaped addr}
//	Value: JSON-encoded ServiceInstance
//
// Every entry is bound to a TTL lease that is kept alive until Deregister or
// Close; if the server dies the entry expires on its own.
type EtcdRegistry struct {
	client *clientv3.Client
	log    *zap.Logger

	mu     sync.Mutex
	leases map[string]lease // key → lease
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, log *zap.Logger) (*EtcdRegistry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      log.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, log: log, leases: make(map[string]lease)}, nil
}

func serviceKey(serviceName, addr string) string {
	return keyPrefix + serviceName + "/" + url.PathEscape(addr)
}

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

// Register puts instance under a fresh lease and keeps the lease alive in the
// background. ctx only bounds the registration itself.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	grant, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := serviceKey(serviceName, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(grant.ID)); err != nil {
		return err
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = lease{id: grant.ID, cancel: cancel}
	r.mu.Unlock()

	// drain keep-alive responses so the channel never fills up
	go func() {
		for range ch {
		}
		r.log.Debug("lease keep-alive stopped", zap.String("key", key))
	}()
	return nil
}

// Deregister removes the instance and stops renewing its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := serviceKey(serviceName, addr)

	r.mu.Lock()
	l, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err != nil {
			r.log.Warn("revoke lease", zap.String("key", key), zap.Error(err))
		}
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Discover returns every instance currently registered under serviceName.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn("skip malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		if instance.Addr == "" {
			instance.Addr = trimKey(serviceName, string(kv.Key))
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list whenever anything under the service prefix
// changes. The channel is closed when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				r.log.Warn("watch", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops every keep-alive and closes the etcd client. Registered entries
// expire when their TTL runs out.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, l := range r.leases {
		l.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}

// trimKey recovers the instance address from an etcd key.
func trimKey(serviceName, key string) string {
	addr, err := url.PathUnescape(strings.TrimPrefix(key, servicePrefix(serviceName)))
	if err != nil {
		return ""
	}
	return addr
}
