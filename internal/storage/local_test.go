package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalObjectStoreRoundTrip(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "artifacts"))

	require.NoError(t, store.PutObject(ctx, "artifacts", "thread-1/result.txt", strings.NewReader("summary body")))
	require.NoError(t, store.PutObject(ctx, "artifacts", "thread-1/result.html", strings.NewReader("<p>summary body</p>")))
	require.NoError(t, store.PutObject(ctx, "artifacts", "thread-2/result.txt", strings.NewReader("other")))

	data, err := store.GetObject(ctx, "artifacts", "thread-1/result.txt")
	require.NoError(t, err)
	assert.Equal(t, "summary body", string(data))

	objects, err := store.ListObjects(ctx, "artifacts", "thread-1/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "thread-1/result.html", objects[0].Name)
	assert.Equal(t, "thread-1/result.txt", objects[1].Name)
}

func TestLocalObjectStoreMissingObject(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "artifacts", "nope/result.txt")
	assert.Error(t, err)
}

func TestLocalObjectStoreListEmptyBucket(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	objects, err := store.ListObjects(context.Background(), "missing-bucket", "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
