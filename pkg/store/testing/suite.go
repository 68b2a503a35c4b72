package testing

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BlobStoreTestSuite checks the store.BlobStore contract. It is backend
// agnostic and reused by every implementation.
//
// Usage:
//
//	func TestMyBlobStore(t *testing.T) {
//	    suite := &storetesting.BlobStoreTestSuite{
//	        NewStore: func(t *testing.T) store.BlobStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type BlobStoreTestSuite struct {
	// NewStore creates a fresh, empty store for each subtest. The suite
	// closes it when the subtest ends.
	NewStore func(t *testing.T) store.BlobStore
}

// Run executes all tests in the suite.
func (suite *BlobStoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("InvalidKeys", suite.RunInvalidKeyTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func (suite *BlobStoreTestSuite) open(t *testing.T) store.BlobStore {
	t.Helper()
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testContext() context.Context {
	return context.Background()
}

// RunBasicTests covers Put, Get and Delete.
func (suite *BlobStoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("PutGet", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.EnsureNamespace(ctx, "ns1"))
		require.NoError(t, s.Put(ctx, "ns1", "a.txt.enc", []byte("hello")))

		data, err := s.Get(ctx, "ns1", "a.txt.enc")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("PutWithoutEnsure", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.Put(ctx, "fresh", "a.txt.enc", []byte("x")))
		data, err := s.Get(ctx, "fresh", "a.txt.enc")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), data)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.Put(ctx, "ns1", "a.txt.enc", []byte("old content")))
		require.NoError(t, s.Put(ctx, "ns1", "a.txt.enc", []byte("new")))

		data, err := s.Get(ctx, "ns1", "a.txt.enc")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)

		keys, err := s.List(ctx, "ns1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt.enc"}, keys)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		_, err := s.Get(ctx, "ns1", "missing.txt.enc")
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.EnsureNamespace(ctx, "ns1"))
		_, err = s.Get(ctx, "ns1", "missing.txt.enc")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.Put(ctx, "ns1", "a.txt.enc", []byte("x")))
		require.NoError(t, s.Delete(ctx, "ns1", "a.txt.enc"))

		_, err := s.Get(ctx, "ns1", "a.txt.enc")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "ns1", "a.txt.enc"), store.ErrNotFound)
	})

	t.Run("DeleteMissingNamespace", func(t *testing.T) {
		s := suite.open(t)
		assert.ErrorIs(t, s.Delete(testContext(), "nowhere", "a.txt.enc"), store.ErrNotFound)
	})

	t.Run("BinaryData", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		blob := make([]byte, 256*1024)
		for i := range blob {
			blob[i] = byte(i * 7)
		}
		require.NoError(t, s.Put(ctx, "ns1", "b.png.enc", blob))

		data, err := s.Get(ctx, "ns1", "b.png.enc")
		require.NoError(t, err)
		assert.True(t, bytes.Equal(blob, data))
	})

	t.Run("DotPrefixedKeys", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		for _, key := range []string{".tmp-a.txt.enc", ".hidden.pdf.enc"} {
			require.NoError(t, s.Put(ctx, "ns1", key, []byte(key)))
			data, err := s.Get(ctx, "ns1", key)
			require.NoError(t, err)
			assert.Equal(t, []byte(key), data)
		}

		keys, err := s.List(ctx, "ns1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{".tmp-a.txt.enc", ".hidden.pdf.enc"}, keys)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := suite.open(t)
		ctx, cancel := context.WithCancel(testContext())
		cancel()

		assert.Error(t, s.Put(ctx, "ns1", "a.txt.enc", []byte("x")))
	})
}

// RunListTests covers List and namespace isolation.
func (suite *BlobStoreTestSuite) RunListTests(t *testing.T) {
	t.Run("UnknownNamespaceIsEmpty", func(t *testing.T) {
		s := suite.open(t)
		keys, err := s.List(testContext(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("EnsureIsIdempotent", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.EnsureNamespace(ctx, "ns1"))
		require.NoError(t, s.EnsureNamespace(ctx, "ns1"))

		keys, err := s.List(ctx, "ns1")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ListsAllKeys", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		want := []string{"a.txt.enc", "b.pdf.enc", "c d.png.enc"}
		for _, key := range want {
			require.NoError(t, s.Put(ctx, "ns1", key, []byte(key)))
		}

		keys, err := s.List(ctx, "ns1")
		require.NoError(t, err)
		assert.ElementsMatch(t, want, keys)
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.Put(ctx, "alice", "a.txt.enc", []byte("a")))
		require.NoError(t, s.Put(ctx, "bob", "b.txt.enc", []byte("b")))

		keys, err := s.List(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt.enc"}, keys)

		_, err = s.Get(ctx, "bob", "a.txt.enc")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("NamespacePrefixIsNotShared", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		require.NoError(t, s.Put(ctx, "ns", "a.txt.enc", []byte("a")))
		require.NoError(t, s.Put(ctx, "ns1", "b.txt.enc", []byte("b")))

		keys, err := s.List(ctx, "ns")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt.enc"}, keys)
	})
}

// RunInvalidKeyTests checks that traversal-shaped keys are refused.
func (suite *BlobStoreTestSuite) RunInvalidKeyTests(t *testing.T) {
	s := suite.open(t)
	ctx := testContext()

	for _, key := range []string{"", "..", "../a.txt.enc", "dir/a.txt.enc", `dir\a.txt.enc`} {
		err := s.Put(ctx, "ns1", key, []byte("x"))
		assert.ErrorIs(t, err, store.ErrInvalidKey, "key %q", key)
	}

	assert.ErrorIs(t, s.EnsureNamespace(ctx, "../escape"), store.ErrInvalidKey)
	assert.ErrorIs(t, s.Put(ctx, "..", "a.txt.enc", []byte("x")), store.ErrInvalidKey)
}

// RunConcurrencyTests checks that readers never observe a partial Put.
func (suite *BlobStoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("ReadersSeeWholeBlobs", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		const size = 64 * 1024
		blobA := bytes.Repeat([]byte{'a'}, size)
		blobB := bytes.Repeat([]byte{'b'}, size/2)
		require.NoError(t, s.Put(ctx, "ns1", "f.txt.enc", blobA))

		var wg sync.WaitGroup
		done := make(chan struct{})
		errs := make(chan error, 8)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done)
			for i := 0; i < 50; i++ {
				blob := blobA
				if i%2 == 1 {
					blob = blobB
				}
				if err := s.Put(ctx, "ns1", "f.txt.enc", blob); err != nil {
					errs <- err
					return
				}
			}
		}()

		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-done:
						return
					default:
					}
					data, err := s.Get(ctx, "ns1", "f.txt.enc")
					if err != nil {
						errs <- err
						return
					}
					if !bytes.Equal(data, blobA) && !bytes.Equal(data, blobB) {
						errs <- fmt.Errorf("observed partial blob of %d bytes", len(data))
						return
					}
				}
			}()
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})

	t.Run("ParallelKeys", func(t *testing.T) {
		s := suite.open(t)
		ctx := testContext()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("file%02d.txt.enc", i)
				assert.NoError(t, s.Put(ctx, "ns1", key, []byte(key)))
			}(i)
		}
		wg.Wait()

		keys, err := s.List(ctx, "ns1")
		require.NoError(t, err)
		assert.Len(t, keys, 16)
	})
}
