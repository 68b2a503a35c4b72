package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, clientAddr string, frame []byte) []byte

func (f handlerFunc) HandleFrame(ctx context.Context, clientAddr string, frame []byte) []byte {
	return f(ctx, clientAddr, frame)
}

func echoHandler() handlerFunc {
	return func(_ context.Context, _ string, frame []byte) []byte {
		return []byte(fmt.Sprintf(`{"echo":%q}`, frame))
	}
}

func startAdapter(t *testing.T, cfg Config, h handlerFunc) (*Adapter, context.CancelFunc, <-chan error) {
	t.Helper()

	cfg.Host = "127.0.0.1"
	cfg.MetricsLogInterval = -1
	a, err := New(cfg, h, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		t.Fatalf("adapter exited before listening: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start listening")
	}

	t.Cleanup(func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = a.Stop(stopCtx)
	})
	return a, cancel, done
}

func dial(t *testing.T, a *Adapter) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port())), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, a *Adapter, frame string) (string, net.Conn) {
	t.Helper()
	conn := dial(t, a)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := conn.Write([]byte(frame))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line, conn
}

func TestSingleExchangeThenClose(t *testing.T) {
	a, _, _ := startAdapter(t, Config{}, echoHandler())

	line, conn := roundTrip(t, a, "{\"command\":\"listar\"}\n")
	assert.Equal(t, `{"echo":"{\"command\":\"listar\"}"}`+"\n", line)

	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err, "server must close after one exchange")
}

func TestCarriageReturnTolerated(t *testing.T) {
	a, _, _ := startAdapter(t, Config{}, echoHandler())

	line, _ := roundTrip(t, a, "ping\r\n")
	assert.Equal(t, `{"echo":"ping"}`+"\n", line)
}

func TestPanicBecomesInternalError(t *testing.T) {
	a, _, _ := startAdapter(t, Config{}, func(context.Context, string, []byte) []byte {
		panic("boom")
	})

	line, _ := roundTrip(t, a, "{}\n")
	assert.Contains(t, line, `"status":"erro"`)
	assert.Contains(t, line, "Erro interno do servidor")

	// The accept loop survives.
	line, _ = roundTrip(t, a, "{}\n")
	assert.Contains(t, line, "Erro interno do servidor")
}

func TestOversizedFrameRejected(t *testing.T) {
	a, _, _ := startAdapter(t, Config{MaxFrameSize: 16}, echoHandler())

	line, _ := roundTrip(t, a, `{"command":"enviar","arquivo":"a.txt","dados":"aGVsbG8gd29ybGQ="}`+"\n")
	assert.Contains(t, line, `"status":"erro"`)
	assert.NotContains(t, line, "echo")
}

func TestHalfClosedPeerGetsIncompleteMessage(t *testing.T) {
	a, _, _ := startAdapter(t, Config{}, echoHandler())

	conn := dial(t, a)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Write([]byte(`{"command":"listar"}`))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "Mensagem incompleta")
}

func TestReadTimeoutClosesSilentPeer(t *testing.T) {
	a, _, _ := startAdapter(t, Config{ReadTimeout: 100 * time.Millisecond}, echoHandler())

	conn := dial(t, a)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	buf := make([]byte, 64)
	_, err := conn.Read(buf)
	assert.Error(t, err)
}

func TestGracefulShutdownForceClosesStuckConnections(t *testing.T) {
	a, cancel, done := startAdapter(t, Config{
		ReadTimeout:     time.Minute,
		ShutdownTimeout: 300 * time.Millisecond,
	}, echoHandler())

	conn := dial(t, a)
	require.Eventually(t, func() bool { return a.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err, "stuck connection should be force-closed")
		assert.Less(t, time.Since(start), 3*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestGracefulShutdownWaitsForInflight(t *testing.T) {
	release := make(chan struct{})
	a, cancel, done := startAdapter(t, Config{ShutdownTimeout: 5 * time.Second},
		func(context.Context, string, []byte) []byte {
			<-release
			return []byte(`{"status":"sucesso"}`)
		})

	conn := dial(t, a)
	_, err := conn.Write([]byte("{}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"status":"sucesso"}`+"\n", line)
	assert.NoError(t, <-done)
}

func TestConnectionLimit(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })

	a, _, _ := startAdapter(t, Config{MaxConnections: 1}, func(context.Context, string, []byte) []byte {
		<-release
		return []byte("{}")
	})

	first := dial(t, a)
	_, err := first.Write([]byte("{}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The second connection completes the TCP handshake via the backlog but
	// is not served until the first one finishes.
	second := dial(t, a)
	_, err = second.Write([]byte("{}\n"))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), a.ActiveConnections())

	once.Do(func() { close(release) })
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{}\n", line)
}

func TestRateLimitDropsExcessConnections(t *testing.T) {
	a, _, _ := startAdapter(t, Config{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 1}}, echoHandler())

	line, _ := roundTrip(t, a, "one\n")
	assert.Equal(t, `{"echo":"one"}`+"\n", line)

	conn := dial(t, a)
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, _ = conn.Write([]byte("two\n"))
	_, err := bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err, "rate-limited connection is closed without a response")
}

func TestStopIsIdempotent(t *testing.T) {
	a, _, done := startAdapter(t, Config{ShutdownTimeout: time.Second}, echoHandler())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, a.Stop(ctx))
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Port: 70000}, echoHandler(), nil)
	assert.Error(t, err)

	_, err = New(Config{MaxConnections: -1}, echoHandler(), nil)
	assert.Error(t, err)

	_, err = New(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestProtocolAndPort(t *testing.T) {
	a, err := New(Config{Port: 5123}, echoHandler(), nil)
	require.NoError(t, err)
	assert.Equal(t, "TCP", a.Protocol())
	assert.Equal(t, 5123, a.Port())
}
