package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/dispatch"
	"github.com/marmos91/ftpplus/pkg/ftperr"
)

const readBufferSize = 64 << 10

// Connection serves the single exchange carried by one TCP connection.
type Connection struct {
	server *Adapter
	id     string
	conn   net.Conn

	// responded is set once a response frame has been written (or attempted),
	// so the panic path never sends a second one.
	responded bool
}

func newConnection(server *Adapter, id string, conn net.Conn) *Connection {
	return &Connection{server: server, id: id, conn: conn}
}

// Serve reads one request frame, dispatches it and writes one response.
// The connection is closed on return regardless of outcome.
//
// A panic anywhere below is recovered here. If no response has been written
// yet, an InternalError response is attempted before closing.
func (c *Connection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[%s] Panic in connection handler from %s: %v\n%s", c.id, clientAddr, r, debug.Stack())
			if !c.responded {
				c.respond(dispatch.Encode(dispatch.ErrorResponse(protocol.Portuguese,
					ftperr.New(ftperr.InternalError, "panic: %v", r))))
			}
		}
		_ = c.conn.Close()
	}()

	if err := c.exchange(ctx, clientAddr); err != nil {
		c.logFailure(err)
	}
}

func (c *Connection) exchange(ctx context.Context, clientAddr string) error {
	if c.server.config.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}

	reader := bufio.NewReaderSize(c.conn, readBufferSize)
	frame, err := protocol.ReadMessageLimit(reader, c.server.config.MaxFrameSize)
	if err != nil {
		var ferr *ftperr.Error
		if errors.As(err, &ferr) {
			// The peer may still be reading after a half-close or an
			// oversized frame; tell it why.
			c.respond(dispatch.Encode(dispatch.ErrorResponse(protocol.Portuguese, err)))
		}
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	logger.Debug("[%s] Received %d byte frame from %s", c.id, len(frame), clientAddr)
	resp := c.server.handler.HandleFrame(ctx, clientAddr, frame)

	if !c.respond(resp) {
		return errors.New("response not delivered")
	}
	return nil
}

// respond writes one response frame and reports whether it was delivered.
func (c *Connection) respond(body []byte) bool {
	c.responded = true

	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			logger.Debug("[%s] Failed to set write deadline: %v", c.id, err)
		}
	}

	if err := protocol.WriteMessage(c.conn, body); err != nil {
		logger.Debug("[%s] Failed to write response: %v", c.id, err)
		return false
	}
	return true
}

func (c *Connection) logFailure(err error) {
	var netErr net.Error
	switch {
	case ftperr.Is(err, ftperr.IncompleteMessage):
		logger.Debug("[%s] Peer closed before a complete frame: %v", c.id, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("[%s] Connection timed out: %v", c.id, err)
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		logger.Debug("[%s] Connection closed: %v", c.id, err)
	default:
		logger.Warn("[%s] Exchange failed: %v", c.id, err)
	}
}
