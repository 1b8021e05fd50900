// Package codec turns outbound requests into frame text and inbound frame text
// into tagged messages.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"mini-wsrpc/message"
)

// Codec encodes requests and decodes inbound messages.
// Implementations must be safe for concurrent use: Encode is called from
// every caller goroutine, Decode only from the dispatch loop.
type Codec interface {
	Encode(req *message.Request) ([]byte, error)
	Decode(data []byte) (*message.Inbound, error)
	Name() string
}

// DefaultCodec is the codec used when none is configured.
const DefaultCodec = "jsonrpc2.0"

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{}
)

func init() {
	Register(&JSONCodec{Version: message.Version})
	Register(&JSONCodec{})
}

// Register makes a codec available to GetCodec under its Name.
func Register(c Codec) {
	mu.Lock()
	codecs[c.Name()] = c
	mu.Unlock()
}

// GetCodec looks up a registered codec by name.
func GetCodec(name string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q (have %v)", name, names())
	}
	return c, nil
}

func names() []string {
	out := make([]string, 0, len(codecs))
	for n := range codecs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
