package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"mini-wsrpc/message"
	"mini-wsrpc/protocol"
	"mini-wsrpc/transport"
)

var nullID = json.RawMessage("null")

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type wireNotification struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  subscriptionBody `json:"params"`
}

type subscriptionBody struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// peer is one accepted connection.
type peer struct {
	id  string
	t   transport.Transport
	log *zap.Logger

	sending sync.Mutex // 同一连接上的响应不能交错写

	mu       sync.Mutex
	channels map[string]struct{}

	closeOnce sync.Once
}

type peerKey struct{}

// PeerID returns the id of the connection a handler is serving.
func PeerID(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(peerKey{}).(*peer)
	if !ok {
		return "", false
	}
	return p.id, true
}

func peerFrom(ctx context.Context) *peer {
	p, _ := ctx.Value(peerKey{}).(*peer)
	return p
}

func newPeer(t transport.Transport, log *zap.Logger) *peer {
	id := uuid.NewString()
	return &peer{
		id:       id,
		t:        t,
		log:      log.With(zap.String("peer_id", id)),
		channels: make(map[string]struct{}),
	}
}

func (p *peer) write(data []byte) error {
	p.sending.Lock()
	defer p.sending.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.t.Send(ctx, protocol.Text(data))
}

func (p *peer) reply(resp *wireResponse) {
	resp.JSONRPC = message.Version
	data, err := json.Marshal(resp)
	if err != nil {
		p.log.Error("encode response", zap.Error(err))
		return
	}
	if err := p.write(data); err != nil {
		p.log.Debug("write response", zap.Error(err))
	}
}

func (p *peer) subscribe(channels []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range channels {
		p.channels[ch] = struct{}{}
	}
	return channels
}

func (p *peer) unsubscribe(channels []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := p.channels[ch]; ok {
			delete(p.channels, ch)
			removed = append(removed, ch)
		}
	}
	return removed
}

func (p *peer) subscribed(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[channel]
	return ok
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		if err := p.t.Close(); err != nil {
			p.log.Debug("close peer", zap.Error(err))
		}
	})
}

// serveTransport reads requests from t until it fails. Each request runs on
// the worker pool; replies go out in completion order.
func (s *Server) serveTransport(t transport.Transport) {
	p := newPeer(t, s.log)
	if !s.track(p) {
		p.close()
		return
	}
	defer s.untrack(p)
	defer p.close()

	s.opts.Metrics.ConnOpened()
	defer s.opts.Metrics.ConnClosed()
	p.log.Debug("peer connected")

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), peerKey{}, p))
	defer cancel()

	for {
		f, err := t.Recv()
		if err != nil {
			p.log.Debug("peer gone", zap.Error(err))
			return
		}
		if f.Type != protocol.FrameText {
			// pings are answered by the transport
			continue
		}

		data := f.Data
		if !s.acquire() {
			s.rejectBusy(p, data, "server shutting down")
			continue
		}
		err = s.pool.Submit(func() {
			defer s.inflight.Done()
			s.handleRequest(ctx, p, data)
		})
		if err != nil {
			s.inflight.Done()
			if errors.Is(err, ants.ErrPoolOverload) {
				s.rejectBusy(p, data, "server busy")
			} else {
				s.rejectBusy(p, data, err.Error())
			}
		}
	}
}

func (s *Server) rejectBusy(p *peer, data []byte, reason string) {
	var req wireRequest
	if json.Unmarshal(data, &req) != nil || isNotification(req.ID) {
		return
	}
	s.opts.Metrics.Handle(req.Method, strconv.Itoa(CodeServerBusy))
	p.reply(&wireResponse{ID: req.ID, Error: NewError(CodeServerBusy, reason, nil)})
}

func (s *Server) handleRequest(ctx context.Context, p *peer, data []byte) {
	var req wireRequest
	if err := json.Unmarshal(data, &req); err != nil {
		p.log.Warn("malformed request", zap.Error(err))
		s.opts.Metrics.Handle("", strconv.Itoa(CodeParseError))
		p.reply(&wireResponse{ID: nullID, Error: NewError(CodeParseError, "Parse error", nil)})
		return
	}
	notify := isNotification(req.ID)
	if req.Method == "" || (req.JSONRPC != "" && req.JSONRPC != message.Version) {
		s.opts.Metrics.Handle(req.Method, strconv.Itoa(CodeInvalidRequest))
		if !notify {
			p.reply(&wireResponse{ID: req.ID, Error: NewError(CodeInvalidRequest, "Invalid Request", nil)})
		}
		return
	}

	result, err := s.invoker()(ctx, &message.Request{ID: numericID(req.ID), Method: req.Method, Params: req.Params})
	if err != nil {
		rpcErr := toRPCError(err)
		s.opts.Metrics.Handle(req.Method, strconv.Itoa(rpcErr.Code))
		p.log.Debug("request failed", zap.String("method", req.Method), zap.Error(err))
		if !notify {
			p.reply(&wireResponse{ID: req.ID, Error: rpcErr})
		}
		return
	}
	s.opts.Metrics.Handle(req.Method, "0")
	if notify {
		return
	}
	if len(result) == 0 {
		result = nullID
	}
	p.reply(&wireResponse{ID: req.ID, Result: result})
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{Code: CodeServerError, Message: err.Error()}
}

func isNotification(id json.RawMessage) bool {
	return len(id) == 0 || bytes.Equal(id, nullID)
}

// numericID is the request id as seen by middlewares; non-numeric ids map to 0.
func numericID(id json.RawMessage) int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
