package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"), zerolog.Nop())
	require.NoError(t, err)

	prefs := store.Load()
	assert.Equal(t, 2500.0, prefs.Threshold)
	assert.False(t, prefs.Locked)
}

func TestPreferencesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	stored, err := store.SetThreshold(9000)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, stored)
	require.NoError(t, store.SetLocked(true))

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	prefs := reopened.Load()
	assert.Equal(t, 5000.0, prefs.Threshold)
	assert.True(t, prefs.Locked)
}

func TestLoadClampsHandEditedThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensitivity_threshold: 120\n"), 0o644))

	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, store.Load().Threshold)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestWatchForwardsThresholdChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan float64, 4)
	require.NoError(t, store.Watch(ctx, updates))

	writer, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = writer.SetThreshold(3100)
	require.NoError(t, err)

	select {
	case v := <-updates:
		assert.Equal(t, 3100.0, v)
	case <-time.After(3 * time.Second):
		t.Fatal("expected threshold update from file watcher")
	}
	assert.Equal(t, 3100.0, store.Load().Threshold)
}

func TestOfferKeepsLatestValue(t *testing.T) {
	ch := make(chan float64, 1)
	assert.False(t, Offer(ch, 3000))
	assert.True(t, Offer(ch, 3200), "full channel should drop the stale value")
	assert.False(t, Offer(make(chan float64, 1), 1000))

	require.Len(t, ch, 1)
	assert.Equal(t, 3200.0, <-ch)
}

func TestWatchDeliversNewestWhenReceiverLags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan float64, 1)
	require.NoError(t, store.Watch(ctx, updates))

	writer, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = writer.SetThreshold(3100)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Load().Threshold == 3100 }, 3*time.Second, 10*time.Millisecond)

	// nobody has read 3100 yet
	_, err = writer.SetThreshold(3300)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Load().Threshold == 3300 }, 3*time.Second, 10*time.Millisecond)

	require.Len(t, updates, 1)
	assert.Equal(t, 3300.0, <-updates)
}
