package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/adapter/tcp"
	"github.com/marmos91/ftpplus/pkg/dispatch"
	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/scanner"
	"github.com/marmos91/ftpplus/pkg/seal"
	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/marmos91/ftpplus/pkg/store/memory"
	"github.com/marmos91/ftpplus/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a full dispatcher behind a TCP adapter on an ephemeral
// port and returns its address.
func startServer(t *testing.T, maxBulk int) string {
	t.Helper()

	sealer, err := seal.NewEphemeral()
	require.NoError(t, err)
	engine := store.NewEngine(memory.New(), sealer, store.Config{MaxBulkFiles: maxBulk})
	d := dispatch.New(engine, validation.New(0, nil), scanner.Absent{}, nil)

	a, err := tcp.New(tcp.Config{Host: "127.0.0.1", MetricsLogInterval: -1}, d, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening")
	}

	t.Cleanup(func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = a.Stop(stopCtx)
		_ = engine.Close()
	})
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port()))
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := New(Config{
		Address:     addr,
		RetryDelay:  -1,
		DialTimeout: time.Second,
		IOTimeout:   5 * time.Second,
		DownloadDir: filepath.Join(t.TempDir(), "baixados"),
	})
	require.NoError(t, err)
	return c
}

func writeLocal(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExecuteRoundTrip(t *testing.T) {
	c := newClient(t, startServer(t, 0))
	ctx := context.Background()

	res, err := c.Execute(ctx, "listar", "", "")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Names)
	assert.NotNil(t, res.Names)

	src := writeLocal(t, "relatorio.txt", "conteúdo")
	res, err = c.Execute(ctx, "enviar", src, "")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "relatorio.txt", res.FileName)
	assert.Equal(t, "Arquivo relatorio.txt salvo com sucesso", res.Message)

	res, err = c.Execute(ctx, "listar", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"relatorio.txt"}, res.Names)

	res, err = c.Execute(ctx, "baixar", "relatorio.txt", "")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	require.Len(t, res.Saved, 1)
	got, err := os.ReadFile(res.Saved[0])
	require.NoError(t, err)
	assert.Equal(t, "conteúdo", string(got))
	assert.Equal(t, filepath.Join(c.config.DownloadDir, "relatorio.txt"), res.Saved[0])

	res, err = c.Execute(ctx, "excluir", "relatorio.txt", "")
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = c.Execute(ctx, "baixar", "relatorio.txt", "")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Arquivo não encontrado", res.Message)
	assert.Empty(t, res.Saved)
}

func TestExecuteEnglishDialect(t *testing.T) {
	c := newClient(t, startServer(t, 0))
	ctx := context.Background()

	src := writeLocal(t, "notes.txt", "hello")
	res, err := c.Execute(ctx, "UPLOAD", "", src)
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, protocol.English, res.Dialect)
	assert.Equal(t, "File notes.txt saved", res.Message)

	res, err = c.Execute(ctx, "list", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, res.Names)

	dest := filepath.Join(t.TempDir(), "out", "copy.txt")
	res, err = c.Execute(ctx, "download", "notes.txt", dest)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{dest}, res.Saved)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExecuteDownloadAll(t *testing.T) {
	c := newClient(t, startServer(t, 3))
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		res, err := c.Execute(ctx, "enviar", "", writeLocal(t, name, name))
		require.NoError(t, err)
		require.True(t, res.OK)
	}

	res, err := c.Execute(ctx, "baixartodos", "", "")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, []string{
		filepath.Join(c.config.DownloadDir, "a.txt"),
		filepath.Join(c.config.DownloadDir, "b.txt"),
	}, res.Saved)
	assert.EqualValues(t, 10, res.Bytes)

	_, err = c.Execute(ctx, "enviar", "", writeLocal(t, "c.txt", "c"))
	require.NoError(t, err)

	res, err = c.Execute(ctx, "baixartodos", "", "")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ftperr.Message(ftperr.TooMany, ftperr.Portuguese), res.Message)
}

func TestExecuteLocalValidation(t *testing.T) {
	// Nothing listens here: every case must fail before dialing.
	c, err := New(Config{
		Address:     "127.0.0.1:1",
		MaxAttempts: 1,
		RetryDelay:  -1,
		Validator:   validation.New(4, []string{"txt"}),
	})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		command  string
		fileName string
		kind     ftperr.Kind
	}{
		{"unknown command", "xyz", "", ftperr.UnknownCommand},
		{"missing file name", "baixar", "", ftperr.InvalidName},
		{"missing local file", "enviar", filepath.Join(t.TempDir(), "nada.txt"), ftperr.NotFound},
		{"disallowed extension", "enviar", writeLocal(t, "a.exe", "x"), ftperr.DisallowedType},
		{"too large", "enviar", writeLocal(t, "big.txt", "12345"), ftperr.TooLarge},
		{"directory", "enviar", t.TempDir(), ftperr.InvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Execute(ctx, tt.command, tt.fileName, "")
			require.Error(t, err)
			assert.Equal(t, tt.kind, ftperr.KindOf(err), "error: %v", err)
		})
	}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestConnectWithRetryExhausted(t *testing.T) {
	c, err := New(Config{Address: closedAddr(t), MaxAttempts: 2, RetryDelay: 10 * time.Millisecond, DialTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.ConnectWithRetry(context.Background())
	require.Error(t, err)
	assert.True(t, ftperr.Is(err, ftperr.ConnectionFailed))

	_, err = c.Execute(context.Background(), "listar", "", "")
	assert.True(t, ftperr.Is(err, ftperr.ConnectionFailed), "connection exhaustion surfaces from Execute: %v", err)
}

func TestConnectWithRetryCanceled(t *testing.T) {
	c, err := New(Config{Address: closedAddr(t), MaxAttempts: 5, RetryDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.ConnectWithRetry(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// fakeServer accepts connections and hands each to reply along with its
// 1-based sequence number.
func fakeServer(t *testing.T, reply func(n int32, conn net.Conn)) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var accepted atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			go func() {
				defer func() { _ = conn.Close() }()
				if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
					return
				}
				reply(n, conn)
			}()
		}
	}()
	return ln.Addr().String(), &accepted
}

// TestLostReplyNotReplayed drops the reply to a delete the server has
// already executed. Sending the frame again would report NotFound for a
// delete that succeeded, so the client must surface the read failure.
func TestLostReplyNotReplayed(t *testing.T) {
	var executed atomic.Int32
	addr, accepted := fakeServer(t, func(n int32, conn net.Conn) {
		executed.Add(1)
		if n == 1 {
			return
		}
		_, _ = conn.Write([]byte(`{"status":"erro","mensagem":"Arquivo não encontrado"}` + "\n"))
	})
	c := newClient(t, addr)

	_, err := c.SendAndReceive(context.Background(), &protocol.Request{Command: protocol.CommandDelete, FileName: "a.txt"})
	require.Error(t, err)
	assert.True(t, ftperr.Is(err, ftperr.IncompleteMessage), "read failure is returned: %v", err)
	assert.EqualValues(t, 1, executed.Load())
	assert.EqualValues(t, 1, accepted.Load())
}

// brokenWriteConn fails every write, standing in for a connection reset
// before the request leaves the client.
type brokenWriteConn struct{ net.Conn }

func (brokenWriteConn) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

// failFirstDials makes the first n connections of c unable to send.
func failFirstDials(c *Client, n int32) *atomic.Int32 {
	var dials atomic.Int32
	dial := c.dial
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		conn, err := dial(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if dials.Add(1) <= n {
			return brokenWriteConn{conn}, nil
		}
		return conn, nil
	}
	return &dials
}

func TestSendFailureRetriedOnFreshConnection(t *testing.T) {
	var executed atomic.Int32
	addr, _ := fakeServer(t, func(_ int32, conn net.Conn) {
		executed.Add(1)
		_, _ = conn.Write([]byte(`{"status":"sucesso","dados":["x.txt"]}` + "\n"))
	})
	c := newClient(t, addr)
	dials := failFirstDials(c, 1)

	resp, err := c.SendAndReceive(context.Background(), &protocol.Request{Command: protocol.CommandList})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, []string{"x.txt"}, resp.Names)
	assert.EqualValues(t, 2, dials.Load())
	assert.EqualValues(t, 1, executed.Load())
}

func TestSendAndReceiveExhausted(t *testing.T) {
	var executed atomic.Int32
	addr, _ := fakeServer(t, func(int32, net.Conn) { executed.Add(1) })
	c := newClient(t, addr)
	dials := failFirstDials(c, 100)

	_, err := c.SendAndReceive(context.Background(), &protocol.Request{Command: protocol.CommandList})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer", "last failure is returned")
	assert.EqualValues(t, DefaultSendRetries, dials.Load())
	assert.Zero(t, executed.Load())
}

func TestSendAndReceiveMalformedNotRetried(t *testing.T) {
	addr, accepted := fakeServer(t, func(_ int32, conn net.Conn) {
		_, _ = conn.Write([]byte("not json\n"))
	})
	c := newClient(t, addr)

	_, err := c.SendAndReceive(context.Background(), &protocol.Request{Command: protocol.CommandList})
	require.Error(t, err)
	assert.True(t, ftperr.Is(err, ftperr.MalformedPayload))
	assert.EqualValues(t, 1, accepted.Load())
}

func TestNewAddress(t *testing.T) {
	c, err := New(Config{Address: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5000", c.Address())

	c, err = New(Config{Address: "localhost:7000"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:7000", c.Address())

	_, err = New(Config{})
	assert.Error(t, err)
}
