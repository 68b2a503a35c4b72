package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/ftpplus/pkg/ftperr"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// ReadMessage reads one frame from r and returns it without the delimiter.
//
// Bytes are accumulated until the first '\n'. A trailing '\r' is stripped so
// that line-oriented tools (nc, telnet) can talk to the server. The frame body
// is returned exactly as received otherwise.
//
// Returns:
//   - []byte: The frame body
//   - error: ftperr.IncompleteMessage if the stream ends before a delimiter
//     (an empty stream included), or the underlying read error
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	return ReadMessageLimit(r, 0)
}

// ReadMessageLimit is ReadMessage with an upper bound on the frame body.
// A limit of 0 disables the bound. Frames above the limit fail with
// ftperr.MalformedPayload and the rest of the stream is left unread.
func ReadMessageLimit(r *bufio.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer

	for {
		chunk, err := r.ReadSlice(Delimiter)
		buf.Write(chunk)

		if limit > 0 && int64(buf.Len()) > limit+1 {
			return nil, ftperr.New(ftperr.MalformedPayload, "frame exceeds %d bytes", limit)
		}

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, ftperr.New(ftperr.IncompleteMessage, "stream closed after %d bytes without delimiter", buf.Len())
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	msg := buf.Bytes()
	msg = msg[:len(msg)-1]
	msg = bytes.TrimSuffix(msg, []byte{'\r'})
	return msg, nil
}

// WriteMessage writes msg followed by the delimiter.
//
// The call returns only once the whole frame has been handed to w; short
// writes are retried until the frame is flushed or w reports an error.
func WriteMessage(w io.Writer, msg []byte) error {
	frame := make([]byte, 0, len(msg)+1)
	frame = append(frame, msg...)
	frame = append(frame, Delimiter)

	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("write frame: %w", io.ErrShortWrite)
		}
		frame = frame[n:]
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}
	return nil
}
