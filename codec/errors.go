package codec

import "fmt"

// DecodeError reports an inbound frame that could not be decoded.
// The dispatch loop treats it as fatal: a malformed stream cannot be resynchronized.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %q: %v", truncate(e.Data, 128), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(data []byte, err error) *DecodeError {
	return &DecodeError{Data: data, Err: err}
}

func decodeErrf(data []byte, format string, args ...any) *DecodeError {
	return &DecodeError{Data: data, Err: fmt.Errorf(format, args...)}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
