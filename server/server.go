// Package server is a JSON-RPC 2.0 endpoint that speaks the same wire format
// the client multiplexes: requests over websocket (or the framed stream
// transport), replies in completion order, and subscription notifications
// pushed to peers that asked for a channel.
//
// Request processing pipeline:
//
//	upgrade / accept → serveTransport (one reader goroutine per peer)
//	  → for each text frame: pool.Submit(handleRequest)
//	    → decode → middleware chain → handler → encode → write reply
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mini-wsrpc/message"
	"mini-wsrpc/middleware"
	"mini-wsrpc/transport"
)

// Built-in methods managing the calling peer's channel subscriptions.
const (
	MethodSubscribe   = "public/subscribe"
	MethodUnsubscribe = "public/unsubscribe"

	// NotificationMethod is the method of every pushed notification.
	NotificationMethod = "subscription"
)

// HandlerFunc serves one method. The returned value is marshalled as the
// result; returning an *RPCError controls the error code.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// ChannelParams are the params of the subscribe and unsubscribe methods.
type ChannelParams struct {
	Channels []string `json:"channels"`
}

// Server dispatches requests to registered handlers and services.
type Server struct {
	opts     *options
	log      *zap.Logger
	pool     *ants.Pool
	upgrader websocket.Upgrader
	router   *gin.Engine

	mu          sync.RWMutex
	handlers    map[string]HandlerFunc
	services    map[string]*service // "Arith" → *service
	middlewares []middleware.Middleware
	chain       middleware.Invoker

	// lifecycle guards everything below; inflight.Add only happens under it
	// while the server is not shutting down
	lifecycle   sync.Mutex
	closing     bool
	inflight    sync.WaitGroup
	peers       map[*peer]struct{}
	listeners   map[net.Listener]struct{}
	httpServers []*http.Server
	announced   string // address registered with opts.Registry
}

// New creates a server with the subscription methods already registered.
func New(opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	s := &Server{
		opts:      o,
		log:       o.Logger,
		handlers:  make(map[string]HandlerFunc),
		services:  make(map[string]*service),
		peers:     make(map[*peer]struct{}),
		listeners: make(map[net.Listener]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}

	pool, err := ants.NewPool(o.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			s.log.Error("handler panic", zap.Any("panic", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("server: create worker pool: %w", err)
	}
	s.pool = pool

	s.HandleFunc(MethodSubscribe, s.subscribe)
	s.HandleFunc(MethodUnsubscribe, s.unsubscribe)
	s.router = s.newRouter()
	return s, nil
}

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(s.opts.Path, s.serveWebSocket)
	r.GET("/healthz", func(c *gin.Context) {
		s.lifecycle.Lock()
		n, closing := len(s.peers), s.closing
		s.lifecycle.Unlock()
		if closing {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": n})
	})
	if s.opts.Gatherer != nil {
		r.GET(s.opts.MetricsPath, gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Register exposes the exported methods of rcvr with the signature
//
//	func (t *T) Method(args *Args, reply *Reply) error
//
// (optionally taking a leading context.Context) as "T.Method".
func (s *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.name]; ok {
		return fmt.Errorf("server: service %s already registered", svc.name)
	}
	s.services[svc.name] = svc
	return nil
}

// HandleFunc serves method with h, replacing any previous handler.
func (s *Server) HandleFunc(method string, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// Use appends a middleware. Middlewares run in the order they were added.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	s.middlewares = append(s.middlewares, mw)
	s.chain = nil
	s.mu.Unlock()
}

// Handler serves the websocket endpoint, /healthz and, if configured, metrics.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts HTTP connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !s.trackListener(ln, srv) {
		ln.Close()
		return nil
	}
	if err := s.announce("ws://" + ln.Addr().String() + s.opts.Path); err != nil {
		return err
	}

	s.log.Info("serving websocket", zap.Stringer("addr", ln.Addr()), zap.String("path", s.opts.Path))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeStream accepts connections on ln that use the framed stream transport.
func (s *Server) ServeStream(ln net.Listener) error {
	if !s.trackListener(ln, nil) {
		ln.Close()
		return nil
	}
	if err := s.announce("tcp://" + ln.Addr().String()); err != nil {
		return err
	}

	s.log.Info("serving stream", zap.Stringer("addr", ln.Addr()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener; that is not a failure
			if s.isClosing() {
				return nil
			}
			return err
		}
		go s.serveTransport(transport.NewStream(conn, s.opts.TransportOpts...))
	}
}

func (s *Server) serveWebSocket(c *gin.Context) {
	if s.isClosing() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.serveTransport(transport.NewWebSocket(conn, s.opts.TransportOpts...))
}

// Publish sends data on channel to every peer subscribed to it and returns how
// many peers it was written to.
func (s *Server) Publish(channel string, data any) (int, error) {
	frame, err := json.Marshal(&wireNotification{
		JSONRPC: message.Version,
		Method:  NotificationMethod,
		Params:  subscriptionBody{Channel: channel, Data: data},
	})
	if err != nil {
		return 0, fmt.Errorf("server: encode notification: %w", err)
	}

	s.lifecycle.Lock()
	targets := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		if p.subscribed(channel) {
			targets = append(targets, p)
		}
	}
	s.lifecycle.Unlock()

	sent := 0
	for _, p := range targets {
		if err := p.write(frame); err != nil {
			p.log.Debug("publish failed", zap.String("channel", channel), zap.Error(err))
			continue
		}
		sent++
	}
	s.opts.Metrics.Publish(sent)
	return sent, nil
}

// Shutdown stops the server gracefully:
//  1. deregister from the registry, so clients stop dialing this instance
//  2. stop accepting connections and requests
//  3. wait for in-flight requests until ctx ends
//  4. close every peer and release the worker pool
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.closing {
		s.lifecycle.Unlock()
		return nil
	}
	s.closing = true
	announced := s.announced
	listeners := s.listeners
	servers := s.httpServers
	s.listeners, s.httpServers = nil, nil
	s.lifecycle.Unlock()

	var errs []error
	if s.opts.Registry != nil && announced != "" {
		if err := s.opts.Registry.Deregister(ctx, s.opts.Service, announced); err != nil {
			errs = append(errs, fmt.Errorf("deregister: %w", err))
		}
	}

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for ln := range listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("server: waiting for in-flight requests: %w", ctx.Err()))
	}

	s.lifecycle.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.lifecycle.Unlock()
	for _, p := range peers {
		p.close()
	}

	s.pool.Release()
	s.log.Info("server stopped", zap.Int("peers", len(peers)))
	return errors.Join(errs...)
}

func (s *Server) isClosing() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.closing
}

func (s *Server) trackListener(ln net.Listener, srv *http.Server) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closing {
		return false
	}
	s.listeners[ln] = struct{}{}
	if srv != nil {
		s.httpServers = append(s.httpServers, srv)
	}
	return true
}

func (s *Server) track(p *peer) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closing {
		return false
	}
	s.peers[p] = struct{}{}
	return true
}

func (s *Server) untrack(p *peer) {
	s.lifecycle.Lock()
	delete(s.peers, p)
	s.lifecycle.Unlock()
}

// acquire reserves an in-flight slot; it fails once Shutdown has begun.
func (s *Server) acquire() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

// announce registers the first served address with the registry.
func (s *Server) announce(addr string) error {
	if s.opts.Registry == nil {
		return nil
	}
	s.lifecycle.Lock()
	if s.announced != "" {
		s.lifecycle.Unlock()
		return nil
	}
	inst := s.opts.Instance
	if inst.Addr == "" {
		inst.Addr = addr
	}
	s.announced = inst.Addr
	s.lifecycle.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.opts.Registry.Register(ctx, s.opts.Service, inst, s.opts.TTL); err != nil {
		return fmt.Errorf("server: register %s: %w", s.opts.Service, err)
	}
	s.log.Info("registered", zap.String("service", s.opts.Service), zap.String("addr", inst.Addr))
	return nil
}

func (s *Server) invoker() middleware.Invoker {
	s.mu.RLock()
	inv := s.chain
	s.mu.RUnlock()
	if inv != nil {
		return inv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain == nil {
		s.chain = middleware.Chain(s.middlewares...)(s.dispatch)
	}
	return s.chain
}

// dispatch is the innermost invoker: find the handler, run it, marshal the result.
func (s *Server) dispatch(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	params, _ := req.Params.(json.RawMessage)
	h, ok := s.lookup(req.Method)
	if !ok {
		return nil, NewError(CodeMethodNotFound, "Method not found", req.Method)
	}
	result, err := h(ctx, params)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, NewError(CodeInternalError, "Internal error", err.Error())
	}
	return raw, nil
}

func (s *Server) lookup(method string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.handlers[method]; ok {
		return h, true
	}

	// "Service.Method"
	svcName, methodName, ok := strings.Cut(method, ".")
	if !ok {
		return nil, false
	}
	svc, ok := s.services[svcName]
	if !ok {
		return nil, false
	}
	mt, ok := svc.method[methodName]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		return svc.call(ctx, mt, params)
	}, true
}

func (s *Server) subscribe(ctx context.Context, params json.RawMessage) (any, error) {
	p, chans, err := channelRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	return p.subscribe(chans), nil
}

func (s *Server) unsubscribe(ctx context.Context, params json.RawMessage) (any, error) {
	p, chans, err := channelRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	return p.unsubscribe(chans), nil
}

func channelRequest(ctx context.Context, params json.RawMessage) (*peer, []string, error) {
	p := peerFrom(ctx)
	if p == nil {
		return nil, nil, NewError(CodeInternalError, "no connection in context", nil)
	}
	var cp ChannelParams
	if err := json.Unmarshal(params, &cp); err != nil || len(cp.Channels) == 0 {
		return nil, nil, NewError(CodeInvalidParams, "Invalid params", "channels must be a non-empty list")
	}
	return p, cp.Channels, nil
}
