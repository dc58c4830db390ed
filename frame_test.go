package lanenet

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("first")))
	require.NoError(t, WriteFrame(&buf, nil))
	require.NoError(t, WriteFrame(&buf, []byte("third")))

	assert.Equal(t, []byte{0, 0, 0, 5, 'f'}, buf.Bytes()[:5])

	// one byte at a time exercises partial reads
	r := iotest.OneByteReader(&buf)
	for _, want := range []string{"first", "", "third"} {
		b, err := ReadFrame(r, 0)
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
	_, err := ReadFrame(r, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("payload")))
	cut := buf.Bytes()[:buf.Len()-2]

	_, err := ReadFrame(bytes.NewReader(cut), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFrame(bytes.NewReader(cut[:2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 64)))
	_, err := ReadFrame(&buf, 32)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
