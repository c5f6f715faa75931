package media

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingRoundTrip(t *testing.T) {
	store, err := NewStagingStore(t.TempDir())
	require.NoError(t, err)

	n, err := store.Stage(7, "0xabc", "local-1", strings.NewReader("video-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	rc, size, err := store.Open(7, "0xabc", "local-1")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(11), size)

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(b))
}

func TestStagingReplaceAndRemove(t *testing.T) {
	store, err := NewStagingStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Stage(7, "0xabc", "local-1", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.Stage(7, "0xabc", "local-1", strings.NewReader("second!"))
	require.NoError(t, err)

	rc, size, err := store.Open(7, "0xabc", "local-1")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, int64(7), size)
	assert.Equal(t, "second!", string(b))

	store.Remove(7, "0xabc", "local-1")
	_, _, err = store.Open(7, "0xabc", "local-1")
	assert.Error(t, err)
}

func TestStagingSessionsDoNotCollide(t *testing.T) {
	store, err := NewStagingStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Stage(7, "0xabc", "local-1", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.Stage(7, "0xdef", "local-1", strings.NewReader("b"))
	require.NoError(t, err)

	rc, _, err := store.Open(7, "0xabc", "local-1")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "a", string(b))
}
