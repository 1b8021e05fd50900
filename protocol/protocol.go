// Package protocol defines the frame unit carried by every transport, plus a
// length-prefixed encoding of frames for plain byte-stream connections.
//
// A WebSocket already delivers whole messages, so it only needs Frame. A raw TCP
// (or unix, or net.Pipe) connection has no message boundaries; Encode/Decode put
// a fixed 9-byte header in front of each frame:
//
//	0      3  4  5             9
//	┌──────┬──┬──┬─────────────┬───────────────┐
//	│magic │v │ft│   bodyLen   │    body ...    │
//	│ mws  │01│  │   uint32    │ bodyLen bytes  │
//	└──────┴──┴──┴─────────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicByte1 byte = 0x6d // 'm'
	MagicByte2 byte = 0x77 // 'w'
	MagicByte3 byte = 0x73 // 's'
	Version    byte = 0x01
	HeaderSize int  = 9 // 3 (magic) + 1 (version) + 1 (frame type) + 4 (bodyLen)

	// MaxBodySize caps a single frame so a corrupt length cannot allocate gigabytes.
	MaxBodySize uint32 = 16 << 20
)

// FrameType mirrors the WebSocket opcodes the multiplexer cares about.
type FrameType byte

const (
	FrameText   FrameType = 1
	FrameBinary FrameType = 2
	FrameClose  FrameType = 8
	FramePing   FrameType = 9
	FramePong   FrameType = 10
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	default:
		return fmt.Sprintf("frame(%d)", byte(t))
	}
}

// Valid reports whether t is one of the known frame types.
func (t FrameType) Valid() bool {
	switch t {
	case FrameText, FrameBinary, FrameClose, FramePing, FramePong:
		return true
	}
	return false
}

// Control reports whether t is a control frame (close, ping, pong).
func (t FrameType) Control() bool {
	return t == FrameClose || t == FramePing || t == FramePong
}

// Frame is one transport-level message.
type Frame struct {
	Type FrameType
	Data []byte
}

// Text builds a text frame.
func Text(data []byte) Frame {
	return Frame{Type: FrameText, Data: data}
}

// Ping builds a ping frame with an optional payload.
func Ping(data []byte) Frame {
	return Frame{Type: FramePing, Data: data}
}

// Encode writes one frame (header + body) to w.
// Callers sharing w between goroutines must serialize calls, otherwise the
// header of one frame can land in the middle of another frame's body.
func Encode(w io.Writer, f *Frame) error {
	if !f.Type.Valid() {
		return fmt.Errorf("unsupported frame type: %d", byte(f.Type))
	}
	if uint64(len(f.Data)) > uint64(MaxBodySize) {
		return fmt.Errorf("frame body too large: %d bytes", len(f.Data))
	}

	buf := make([]byte, HeaderSize+len(f.Data))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(f.Data)))
	copy(buf[HeaderSize:], f.Data)

	// one Write per frame so a net.Conn never sees a split header
	_, err := w.Write(buf)
	return err
}

// Decode reads exactly one frame from r.
// A clean end of stream before any header byte is returned as io.EOF.
func Decode(r io.Reader) (*Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicByte1 || header[1] != MagicByte2 || header[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", header[0:3])
	}
	if header[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", header[3])
	}
	ft := FrameType(header[4])
	if !ft.Valid() {
		return nil, fmt.Errorf("unsupported frame type: %d", header[4])
	}
	bodyLen := binary.BigEndian.Uint32(header[5:9])
	if bodyLen > MaxBodySize {
		return nil, fmt.Errorf("frame body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &Frame{Type: ft, Data: body}, nil
}
