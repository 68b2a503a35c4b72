package store_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/seal"
	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/marmos91/ftpplus/pkg/store/fs"
	"github.com/marmos91/ftpplus/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, blobs store.BlobStore, cfg store.Config) *store.Engine {
	t.Helper()
	sealer, err := seal.NewEphemeral()
	require.NoError(t, err)
	e := store.NewEngine(blobs, sealer, cfg)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNamespaceOf(t *testing.T) {
	a := store.NamespaceOf("10.0.0.1:5555")
	assert.Equal(t, a, store.NamespaceOf("10.0.0.1:6666"), "port must not matter")
	assert.NotEqual(t, a, store.NamespaceOf("10.0.0.2:5555"))
	assert.Len(t, string(a), 64)
	assert.True(t, store.ValidKey(string(a)))

	assert.Equal(t, store.NamespaceOf("[::1]:1"), store.NamespaceOf("[::1]:2"))
	assert.Equal(t, store.NamespaceOf("10.0.0.1"), a, "bare hosts hash the same as host:port")
}

func TestEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})

	ns, err := e.NamespaceFor(ctx, "127.0.0.1:40000")
	require.NoError(t, err)

	payload := []byte("hello, encrypted world")
	require.NoError(t, e.Put(ctx, ns, "a.txt", payload))

	got, err := e.Get(ctx, ns, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	names, err := e.List(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestEngineStoresCiphertext(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	blobs, err := fs.New(fs.Config{Path: root, NoSync: true})
	require.NoError(t, err)
	e := newEngine(t, blobs, store.Config{})

	ns, err := e.NamespaceFor(ctx, "192.168.1.10:1234")
	require.NoError(t, err)
	require.NoError(t, e.Put(ctx, ns, "secret.txt", []byte("plaintext marker")))

	raw, err := os.ReadFile(filepath.Join(root, string(ns), "secret.txt"+store.Marker))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("plaintext marker")))
	assert.Len(t, raw, len("plaintext marker")+seal.Overhead)
}

func TestEngineOverwrite(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})
	ns := store.NamespaceOf("h:1")

	require.NoError(t, e.Put(ctx, ns, "a.txt", []byte("one")))
	require.NoError(t, e.Put(ctx, ns, "a.txt", []byte("two")))

	got, err := e.Get(ctx, ns, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestEngineDelete(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})
	ns := store.NamespaceOf("h:1")

	err := e.Delete(ctx, ns, "missing.txt")
	assert.True(t, ftperr.Is(err, ftperr.NotFound))

	require.NoError(t, e.Put(ctx, ns, "a.txt", []byte("x")))
	require.NoError(t, e.Put(ctx, ns, "b.txt", []byte("y")))
	require.NoError(t, e.Delete(ctx, ns, "a.txt"))

	names, err := e.List(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)

	_, err = e.Get(ctx, ns, "a.txt")
	assert.True(t, ftperr.Is(err, ftperr.NotFound))
}

func TestEngineNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})

	nsA, err := e.NamespaceFor(ctx, "10.0.0.1:1000")
	require.NoError(t, err)
	nsB, err := e.NamespaceFor(ctx, "10.0.0.2:1000")
	require.NoError(t, err)

	require.NoError(t, e.Put(ctx, nsA, "a.txt", []byte("mine")))

	names, err := e.List(ctx, nsB)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = e.Get(ctx, nsB, "a.txt")
	assert.True(t, ftperr.Is(err, ftperr.NotFound))

	all, err := e.GetAll(ctx, nsB)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEngineGetAll(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})
	ns := store.NamespaceOf("h:1")

	want := map[string][]byte{}
	for i := 0; i < 49; i++ {
		name := fmt.Sprintf("f%02d.txt", i)
		want[name] = []byte(name)
		require.NoError(t, e.Put(ctx, ns, name, want[name]))
	}

	got, err := e.GetAll(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, e.Put(ctx, ns, "f49.txt", []byte("fiftieth")))
	got, err = e.GetAll(ctx, ns)
	assert.True(t, ftperr.Is(err, ftperr.TooMany))
	assert.Nil(t, got)
}

func TestEngineGetAllConfiguredLimit(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{MaxBulkFiles: 2})
	ns := store.NamespaceOf("h:1")
	assert.Equal(t, 2, e.MaxBulkFiles())

	require.NoError(t, e.Put(ctx, ns, "a.txt", []byte("a")))
	_, err := e.GetAll(ctx, ns)
	require.NoError(t, err)

	require.NoError(t, e.Put(ctx, ns, "b.txt", []byte("b")))
	_, err = e.GetAll(ctx, ns)
	assert.True(t, ftperr.Is(err, ftperr.TooMany))
}

func TestEngineIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	e := newEngine(t, blobs, store.Config{})
	ns := store.NamespaceOf("h:1")

	require.NoError(t, blobs.Put(ctx, string(ns), "stray", []byte("x")))
	require.NoError(t, blobs.Put(ctx, string(ns), store.Marker, []byte("x")))
	require.NoError(t, e.Put(ctx, ns, "a.txt", []byte("a")))

	names, err := e.List(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestEngineUnreadableAfterKeyChange(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	ns := store.NamespaceOf("h:1")

	first := newEngine(t, blobs, store.Config{})
	require.NoError(t, first.Put(ctx, ns, "a.txt", []byte("x")))

	// a new process generates a new key
	second := newEngine(t, blobs, store.Config{})
	_, err := second.Get(ctx, ns, "a.txt")
	assert.True(t, ftperr.Is(err, ftperr.StorageIO))
}

func TestEngineRejectsInvalidNames(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New(), store.Config{})
	ns := store.NamespaceOf("h:1")

	for _, name := range []string{"", "..", "../a.txt", "a/b.txt"} {
		assert.True(t, ftperr.Is(e.Put(ctx, ns, name, []byte("x")), ftperr.InvalidName), name)
		_, err := e.Get(ctx, ns, name)
		assert.True(t, ftperr.Is(err, ftperr.InvalidName), name)
		assert.True(t, ftperr.Is(e.Delete(ctx, ns, name), ftperr.InvalidName), name)
	}
}

func TestEngineConcurrentWritersSameFile(t *testing.T) {
	ctx := context.Background()
	blobs, err := fs.New(fs.Config{Path: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	e := newEngine(t, blobs, store.Config{})
	ns := store.NamespaceOf("h:1")

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 32*1024)
	}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			assert.NoError(t, e.Put(ctx, ns, "race.txt", p))
		}(p)
	}
	wg.Wait()

	got, err := e.Get(ctx, ns, "race.txt")
	require.NoError(t, err)

	found := false
	for _, p := range payloads {
		if bytes.Equal(p, got) {
			found = true
		}
	}
	assert.True(t, found, "stored content must equal one complete upload")

	names, err := e.List(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"race.txt"}, names)
}

func TestEngineCancelledContext(t *testing.T) {
	e := newEngine(t, memory.New(), store.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Put(ctx, store.NamespaceOf("h:1"), "a.txt", []byte("x"))
	assert.True(t, ftperr.Is(err, ftperr.InternalError))
}
