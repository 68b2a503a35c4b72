// Package client implements the FTPPlus client driver: bounded connection
// retry, one framed request and one framed response per connection, and
// local persistence of downloaded files.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/validation"
)

const (
	DefaultPort        = 5000
	DefaultMaxAttempts = 3
	DefaultSendRetries = 3
	DefaultRetryDelay  = time.Second
	DefaultDialTimeout = 30 * time.Second
	DefaultIOTimeout   = 30 * time.Second
	DefaultDownloadDir = "baixados"
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	// Address is the server as host or host:port. A bare host uses DefaultPort.
	Address string

	// MaxAttempts bounds ConnectWithRetry.
	MaxAttempts int

	// SendRetries bounds SendAndReceive.
	SendRetries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	DialTimeout time.Duration
	IOTimeout   time.Duration

	// MaxResponseSize caps a response frame. 0 disables the cap.
	MaxResponseSize int64

	// DownloadDir receives downloaded files and is created on demand.
	DownloadDir string

	// Validator pre-checks uploads before they are sent. Nil uses the
	// validation defaults.
	Validator *validation.Validator
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SendRetries <= 0 {
		c.SendRetries = DefaultSendRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.Validator == nil {
		c.Validator = validation.New(0, nil)
	}
}

// Client talks to one FTPPlus server. It holds no connection between calls
// and is safe for concurrent use.
type Client struct {
	config Config
	addr   string
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

// New creates a Client for cfg.Address.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	addr, err := normalizeAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		addr:   addr,
		dial:   (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
	}, nil
}

// Address returns the host:port the client dials.
func (c *Client) Address() string {
	return c.addr
}

func normalizeAddress(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("client: server address is required")
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultPort)), nil
}

// ConnectWithRetry dials the server up to MaxAttempts times, returning the
// first connection that succeeds. Exhaustion yields ftperr.ConnectionFailed
// wrapping the last dial error.
func (c *Client) ConnectWithRetry(ctx context.Context) (net.Conn, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		conn, err := c.dial(ctx, "tcp", c.addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Debug("Connect to %s failed (attempt %d/%d): %v", c.addr, attempt, c.config.MaxAttempts, err)

		if attempt < c.config.MaxAttempts {
			if err := c.pause(ctx); err != nil {
				lastErr = err
				break
			}
		}
	}

	return nil, ftperr.Wrap(ftperr.ConnectionFailed, lastErr, "could not connect to %s", c.addr)
}

// SendAndReceive sends req and returns the server's response.
//
// The server closes every connection after one exchange, so each attempt
// dials afresh. A failed send is retried up to SendRetries times with
// RetryDelay in between; the last failure is returned on exhaustion. Once the
// request is written the server may already have executed it, so a failed
// or undecodable reply is returned as is. Connection exhaustion is not
// retried either.
func (c *Client) SendAndReceive(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.SendRetries; attempt++ {
		resp, retry, err := c.exchange(ctx, frame)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		logger.Debug("%s to %s failed (attempt %d/%d): %v", req.Command, c.addr, attempt, c.config.SendRetries, err)

		if attempt < c.config.SendRetries {
			if err := c.pause(ctx); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

// exchange runs one request/response cycle on a fresh connection. retry
// reports whether the failure is worth another attempt.
func (c *Client) exchange(ctx context.Context, frame []byte) (resp *protocol.Response, retry bool, err error) {
	conn, err := c.ConnectWithRetry(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.config.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, true, fmt.Errorf("set deadline: %w", err)
	}

	if err := protocol.WriteMessage(conn, frame); err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("send request: %w", err)
	}

	reply, err := protocol.ReadMessageLimit(bufio.NewReaderSize(conn, 64*1024), c.config.MaxResponseSize)
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}

	resp, err = protocol.DecodeResponse(reply)
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

func (c *Client) pause(ctx context.Context) error {
	if c.config.RetryDelay == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.config.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
