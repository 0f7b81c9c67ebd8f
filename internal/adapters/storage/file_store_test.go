package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ev := sampleEvidence()
	require.NoError(t, store.SaveEvidence(context.Background(), ev))

	raw, err := os.ReadFile(filepath.Join(dir, "20260314T092653Z_"+ev.Envelope.ID.String()+".eml"))
	require.NoError(t, err)
	assert.Equal(t, ev.Raw, raw, "raw bytes are stored untouched")

	got, err := store.GetEvidence(context.Background(), ev.Envelope.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.Raw, got.Raw)
	assert.Equal(t, ev.Subject, got.Subject)
	assert.Equal(t, ev.Envelope.RcptTo, got.Envelope.RcptTo)
	assert.True(t, ev.Envelope.ReceivedAt.Equal(got.Envelope.ReceivedAt))

	leftovers, err := filepath.Glob(filepath.Join(dir, ".evidence-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_GetEvidence_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	got, err := store.GetEvidence(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.SaveEvidence(ctx, sampleEvidence()), context.Canceled)
}

func TestNewFileStore_RequiresDirectory(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
