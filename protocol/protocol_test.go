package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frames := []Frame{
		Text([]byte(`{"id":0,"method":"ping","params":null}`)),
		{Type: FrameBinary, Data: []byte{0x00, 0x01, 0x02}},
		Ping(nil),
		{Type: FramePong, Data: []byte("hb")},
	}

	var buf bytes.Buffer
	for i := range frames {
		require.NoError(t, Encode(&buf, &frames[i]))
	}

	for _, want := range frames {
		got, err := Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, len(want.Data), len(got.Data))
		assert.True(t, bytes.Equal(want.Data, got.Data))
	}

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeInvalidMagic(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, Version, byte(FrameText), 0x00, 0x00, 0x00, 0x02, 'h', 'i'}

	_, err := Decode(bytes.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid magic number")
}

func TestDecodeUnsupported(t *testing.T) {
	cases := []struct {
		name   string
		header []byte
		want   string
	}{
		{"version", []byte{MagicByte1, MagicByte2, MagicByte3, 0x07, byte(FrameText), 0, 0, 0, 0}, "unsupported version"},
		{"frame type", []byte{MagicByte1, MagicByte2, MagicByte3, Version, 0x05, 0, 0, 0, 0}, "unsupported frame type"},
		{"body size", []byte{MagicByte1, MagicByte2, MagicByte3, Version, byte(FrameText), 0xff, 0xff, 0xff, 0xff}, "too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tc.header))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Frame{Type: FrameText, Data: []byte("hello world")}))
	truncated := buf.Bytes()[:HeaderSize+3]

	_, err := Decode(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Frame{Type: FramePing}))
	assert.Equal(t, HeaderSize, buf.Len())

	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, FramePing, f.Type)
	assert.Empty(t, f.Data)
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Frame{Type: FrameType(3)})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestFrameTypeString(t *testing.T) {
	assert.Equal(t, "text", FrameText.String())
	assert.Equal(t, "ping", FramePing.String())
	assert.Equal(t, "frame(42)", FrameType(42).String())
	assert.True(t, FramePong.Control())
	assert.False(t, FrameBinary.Control())
}
