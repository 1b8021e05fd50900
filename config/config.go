// Package config loads the settings shared by the wsrpc command and by
// embedding applications: defaults, then a JSON file, then WSRPC_*
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"mini-wsrpc/codec"
	"mini-wsrpc/loadbalance"
	"mini-wsrpc/logging"
)

// Duration is a time.Duration written as "30s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// plain numbers are nanoseconds
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Client   ClientConfig    `json:"client"`
	Server   ServerConfig    `json:"server"`
	Registry RegistryConfig  `json:"registry"`
	Log      logging.Options `json:"log"`
}

type ClientConfig struct {
	Endpoint          string   `json:"endpoint"` // ws://, wss:// or tcp:// URL; empty means discover
	Network           string   `json:"network"`  // named endpoint table, e.g. "testnet"
	Service           string   `json:"service"`  // registry service name when discovering
	Balancer          string   `json:"balancer"`
	Codec             string   `json:"codec"`
	Heartbeat         Duration `json:"heartbeat"`
	HandshakeTimeout  Duration `json:"handshake_timeout"`
	WriteTimeout      Duration `json:"write_timeout"`
	CallTimeout       Duration `json:"call_timeout"` // 0 = caller's ctx only
	NotificationLimit int      `json:"notification_limit"`
	LenientReplies    bool     `json:"lenient_replies"`
}

type ServerConfig struct {
	Addr            string   `json:"addr"`
	Path            string   `json:"path"`
	Workers         int      `json:"workers"`
	Service         string   `json:"service"`   // registry service name, empty = do not register
	Advertise       string   `json:"advertise"` // URL registered for this server
	Weight          int      `json:"weight"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	MetricsPath     string   `json:"metrics_path"` // empty disables /metrics
}

type RegistryConfig struct {
	Endpoints   []string `json:"endpoints"` // etcd endpoints, empty = static registry
	DialTimeout Duration `json:"dial_timeout"`
	TTL         int64    `json:"ttl"` // lease seconds
}

// Default returns a configuration that talks to the public testnet.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Network:          "testnet",
			Service:          "deribit",
			Balancer:         loadbalance.RoundRobin,
			Codec:            codec.DefaultCodec,
			Heartbeat:        Duration(30 * time.Second),
			HandshakeTimeout: Duration(10 * time.Second),
			WriteTimeout:     Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			Path:            "/ws",
			Workers:         256,
			Weight:          10,
			ShutdownTimeout: Duration(10 * time.Second),
			MetricsPath:     "/metrics",
		},
		Registry: RegistryConfig{
			DialTimeout: Duration(5 * time.Second),
			TTL:         10,
		},
		Log: logging.DefaultOptions(),
	}
}

// Load reads path (optional) over the defaults, applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WSRPC_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("WSRPC_ENDPOINT", &c.Client.Endpoint)
	str("WSRPC_NETWORK", &c.Client.Network)
	str("WSRPC_SERVICE", &c.Client.Service)
	str("WSRPC_BALANCER", &c.Client.Balancer)
	str("WSRPC_CODEC", &c.Client.Codec)
	dur("WSRPC_HEARTBEAT", &c.Client.Heartbeat)
	dur("WSRPC_CALL_TIMEOUT", &c.Client.CallTimeout)
	str("WSRPC_SERVER_ADDR", &c.Server.Addr)
	str("WSRPC_ADVERTISE", &c.Server.Advertise)
	str("WSRPC_LOG_LEVEL", &c.Log.Level)
	str("WSRPC_LOG_FILE", &c.Log.FilePath)

	if v, ok := lookup("WSRPC_ETCD_ENDPOINTS"); ok && v != "" {
		c.Registry.Endpoints = splitList(v)
	}
	if v, ok := lookup("WSRPC_NOTIFICATION_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WSRPC_NOTIFICATION_LIMIT: %w", err))
		} else {
			c.Client.NotificationLimit = n
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Client.Endpoint != "" {
		u, err := url.Parse(c.Client.Endpoint)
		if err != nil {
			errs = append(errs, fmt.Errorf("client.endpoint: %w", err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "tcp" {
			errs = append(errs, fmt.Errorf("client.endpoint: scheme must be ws, wss or tcp, got %q", u.Scheme))
		}
	}
	if _, err := codec.GetCodec(c.Client.Codec); err != nil {
		errs = append(errs, fmt.Errorf("client.codec: %w", err))
	}
	if _, err := loadbalance.ByName(c.Client.Balancer); err != nil {
		errs = append(errs, fmt.Errorf("client.balancer: %w", err))
	}
	if c.Client.NotificationLimit < 0 {
		errs = append(errs, errors.New("client.notification_limit must not be negative"))
	}
	if c.Client.Heartbeat < 0 || c.Client.CallTimeout < 0 {
		errs = append(errs, errors.New("client durations must not be negative"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, errors.New("server.workers must be positive"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with '/', got %q", c.Server.Path))
	}
	if c.Server.Service != "" && c.Server.Advertise == "" {
		errs = append(errs, errors.New("server.advertise is required when server.service is set"))
	}
	if len(c.Registry.Endpoints) > 0 && c.Registry.TTL <= 0 {
		errs = append(errs, errors.New("registry.ttl must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
