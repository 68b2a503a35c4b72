package memory

import (
	"context"
	"testing"

	"github.com/marmos91/ftpplus/pkg/store"
	storetesting "github.com/marmos91/ftpplus/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStore(t *testing.T) {
	suite := &storetesting.BlobStoreTestSuite{
		NewStore: func(t *testing.T) store.BlobStore {
			return New()
		},
	}
	suite.Run(t)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ns", "a.txt.enc", []byte("abc")))
	data, err := s.Get(ctx, "ns", "a.txt.enc")
	require.NoError(t, err)
	data[0] = 'X'

	again, err := s.Get(ctx, "ns", "a.txt.enc")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.List(context.Background(), "ns")
	assert.ErrorIs(t, err, store.ErrClosed)
}
