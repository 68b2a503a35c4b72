package protocol

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkWriter accepts at most n bytes per Write call.
type chunkWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		p = p[:w.n]
	}
	return w.buf.Write(p)
}

func TestReadMessage(t *testing.T) {
	t.Run("SingleFrame", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("{\"command\":\"listar\"}\n"))
		msg, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Equal(t, `{"command":"listar"}`, string(msg))
	})

	t.Run("StripsCarriageReturn", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("{}\r\n"))
		msg, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(msg))
	})

	t.Run("ConsecutiveFrames", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("a\nb\n"))
		first, err := ReadMessage(r)
		require.NoError(t, err)
		second, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Equal(t, "a", string(first))
		assert.Equal(t, "b", string(second))
	})

	t.Run("FrameLargerThanBuffer", func(t *testing.T) {
		body := strings.Repeat("x", 64*1024)
		r := bufio.NewReaderSize(strings.NewReader(body+"\n"), 16)
		msg, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Len(t, msg, len(body))
	})

	t.Run("EOFBeforeDelimiter", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader(`{"command":`))
		_, err := ReadMessage(r)
		assert.True(t, ftperr.Is(err, ftperr.IncompleteMessage))
	})

	t.Run("EmptyStream", func(t *testing.T) {
		_, err := ReadMessage(bufio.NewReader(strings.NewReader("")))
		assert.True(t, ftperr.Is(err, ftperr.IncompleteMessage))
	})
}

func TestReadMessageLimit(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader(strings.Repeat("x", 100)+"\n"), 16)
	_, err := ReadMessageLimit(r, 10)
	assert.True(t, ftperr.Is(err, ftperr.MalformedPayload))

	r = bufio.NewReader(strings.NewReader("0123456789\n"))
	msg, err := ReadMessageLimit(r, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(msg))
}

func TestWriteMessage(t *testing.T) {
	w := &chunkWriter{n: 3}
	require.NoError(t, WriteMessage(w, []byte(`{"status":"ok"}`)))
	assert.Equal(t, "{\"status\":\"ok\"}\n", w.buf.String())
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte("hello")))
	msg, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}
