package mux

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"mini-wsrpc/message"
	"mini-wsrpc/metrics"
	"mini-wsrpc/protocol"
)

// dispatch is the only goroutine that touches the correlation table.
func (c *Conn) dispatch() {
	cause := c.loop()
	c.terminate(cause)
}

// loop runs until something fatal happens and returns the cause.
func (c *Conn) loop() error {
	for {
		select {
		case w := <-c.register:
			if err := c.insert(w); err != nil {
				return err
			}

		case id := <-c.unregister:
			// the registration for id was queued before the unregister was sent
			if err := c.drainRegistrations(); err != nil {
				return err
			}
			c.pending.remove(id)
			c.metrics.SetPending(c.pending.len())

		case ev := <-c.inbound:
			if ev.err != nil {
				return recvError(ev.err)
			}
			if err := c.route(ev.frame); err != nil {
				return err
			}

		case <-c.closing:
			return ErrClosed
		}
	}
}

func (c *Conn) insert(w *waiter) error {
	if err := c.pending.insert(w); err != nil {
		w.cancel(err)
		return &ProtocolError{ID: w.id, Reason: err.Error()}
	}
	c.metrics.SetPending(c.pending.len())
	return nil
}

// drainRegistrations moves every queued registration into the table without
// blocking.
func (c *Conn) drainRegistrations() error {
	for {
		select {
		case w := <-c.register:
			if err := c.insert(w); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Conn) route(f protocol.Frame) error {
	if f.Type != protocol.FrameText {
		c.observeControl(f)
		return nil
	}

	// a caller finishes registering before it writes, so any registration
	// for this reply is already queued
	if err := c.drainRegistrations(); err != nil {
		return err
	}

	c.log.Debug("inbound message", zap.ByteString("payload", f.Data))
	in, err := c.codec.Decode(f.Data)
	if err != nil {
		c.log.Error("malformed inbound message", zap.Error(err))
		return err
	}

	switch in.Kind {
	case message.KindReply, message.KindError:
		return c.resolve(in)
	case message.KindNotification:
		return c.forward(in.Notification)
	default:
		return &ProtocolError{ID: in.ID, Reason: "unknown message kind " + in.Kind.String()}
	}
}

func (c *Conn) resolve(in *message.Inbound) error {
	w, ok := c.pending.take(in.ID)
	if !ok {
		if c.opts.LenientReplies {
			c.log.Warn("reply for unknown request id ignored", zap.Int64("id", in.ID), zap.Stringer("kind", in.Kind))
			return nil
		}
		return &ProtocolError{ID: in.ID, Reason: "reply for unknown request id"}
	}
	c.metrics.SetPending(c.pending.len())

	if in.Kind == message.KindError {
		c.metrics.Outcome(metrics.OutcomeRemote)
		w.resolve(nil, &RemoteError{Code: in.Error.Code, Message: in.Error.Message, Data: in.Error.Data})
		return nil
	}
	c.metrics.Outcome(metrics.OutcomeResult)
	w.resolve(in.Result, nil)
	return nil
}

func (c *Conn) forward(n *message.Notification) error {
	err := c.fwd.push(n)
	switch {
	case err == nil:
		c.metrics.Notification()
		return nil
	case errors.Is(err, errNotificationOverflow):
		c.metrics.DroppedNotification()
		c.log.Warn("notification dropped", zap.String("method", n.Method), zap.String("channel", n.Channel), zap.Error(err))
		return nil
	default:
		c.log.Error("notification delivery failed", zap.Error(err))
		return err
	}
}

// observeControl records a non-text frame. Peers can send pings at a high
// rate, so logging is throttled.
func (c *Conn) observeControl(f protocol.Frame) {
	c.metrics.ControlFrame(f.Type.String())
	c.controlLog.Do(func() {
		c.log.Debug("control frame", zap.Stringer("type", f.Type), zap.Int("len", len(f.Data)))
	})
}

// terminate runs once, on the dispatch goroutine, after loop returned.
func (c *Conn) terminate(cause error) {
	c.err = cause
	if errors.Is(cause, ErrClosed) {
		c.log.Info("connection closed")
	} else {
		c.log.Error("connection terminated", zap.Error(cause))
	}

	var dropped []*waiter
queued:
	for {
		select {
		case w := <-c.register:
			dropped = append(dropped, w)
		default:
			break queued
		}
	}
	dropped = append(dropped, c.pending.drain()...)
	for _, w := range dropped {
		w.cancel(cause)
		c.metrics.Outcome(metrics.OutcomeCancelled)
	}
	c.metrics.SetPending(0)

	c.fwd.close()
	if err := c.t.Close(); err != nil {
		c.log.Debug("close transport", zap.Error(err))
	}
	close(c.done)
}

func recvError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrConnClosed
	}
	return &TransportError{Op: "recv", Err: err}
}
