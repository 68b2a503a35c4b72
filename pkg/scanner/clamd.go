package scanner

import (
	"bytes"
	"context"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/marmos91/ftpplus/internal/logger"
)

// DefaultTimeout bounds a single scan.
const DefaultTimeout = 30 * time.Second

// ClamdScanner streams payloads to a running clamd daemon with INSTREAM.
//
// Address uses the go-clamd URL form: "unix:///var/run/clamav/clamd.ctl" or
// "tcp://127.0.0.1:3310".
type ClamdScanner struct {
	client  *clamd.Clamd
	address string
	timeout time.Duration
}

// NewClamdScanner creates a ClamdScanner. No connection is made until the
// first Ping or Scan.
func NewClamdScanner(address string, timeout time.Duration) *ClamdScanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ClamdScanner{
		client:  clamd.NewClamd(address),
		address: address,
		timeout: timeout,
	}
}

func (c *ClamdScanner) Name() string { return "clamd" }

// Ping reports whether the daemon answers.
func (c *ClamdScanner) Ping() error {
	return c.client.Ping()
}

type clamdOutcome struct {
	verdict Verdict
	detail  string
}

// Scan streams data to clamd. Connection failures and scan errors yield
// Unavailable; a FOUND result yields Suspicious.
func (c *ClamdScanner) Scan(ctx context.Context, data []byte) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	abort := make(chan bool)
	defer close(abort)

	done := make(chan clamdOutcome, 1)
	go func() {
		done <- c.scan(data, abort)
	}()

	select {
	case out := <-done:
		switch out.verdict {
		case Suspicious:
			logger.Warn("clamd flagged upload: %s", out.detail)
		case Unavailable:
			logger.Warn("clamd at %s unavailable: %s", c.address, out.detail)
		}
		return out.verdict
	case <-ctx.Done():
		logger.Warn("clamd scan abandoned: %v", ctx.Err())
		return Unavailable
	}
}

func (c *ClamdScanner) scan(data []byte, abort chan bool) clamdOutcome {
	results, err := c.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return clamdOutcome{Unavailable, err.Error()}
	}

	out := clamdOutcome{verdict: Clean}
	for res := range results {
		switch res.Status {
		case clamd.RES_FOUND:
			out = clamdOutcome{Suspicious, res.Description}
		case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
			if out.verdict == Clean {
				out = clamdOutcome{Unavailable, res.Description}
			}
		}
	}
	return out
}
