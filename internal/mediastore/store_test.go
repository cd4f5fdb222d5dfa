package mediastore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/events"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

var fixedNow = time.Date(2026, 5, 4, 13, 7, 9, 42*int(time.Millisecond), time.UTC)

func openTestStore(t *testing.T) (*Store, *prometheus.Registry) {
	t.Helper()

	dir := t.TempDir()
	registry := prometheus.NewRegistry()
	m, err := metrics.NewEventMetrics(registry)
	require.NoError(t, err)

	store, err := Open(Config{
		PhotoDir: filepath.Join(dir, "photos"),
		VideoDir: filepath.Join(dir, "videos"),
		Database: filepath.Join(dir, "db", "media.db"),
	}, m)
	require.NoError(t, err)
	store.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = store.Close() })
	return store, registry
}

func TestOpenValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{PhotoDir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDestinationNaming(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)

	photo, err := store.NewPhoto(t.Context())
	require.NoError(t, err)
	assert.Equal(t, camera.MediaPhoto, photo.Kind)
	assert.Equal(t, "2026-05-04-13-07-09-042", photo.DisplayName)
	assert.Equal(t, PhotoContentType, photo.ContentType)
	assert.Equal(t, filepath.Join(store.cfg.PhotoDir, "2026-05-04-13-07-09-042.jpg"), photo.Path)
	assert.Len(t, photo.ID, 36)

	video, err := store.NewVideo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04-13-07-09", video.DisplayName)
	assert.Equal(t, VideoContentType, video.ContentType)
	assert.Equal(t, ".mjpeg", filepath.Ext(video.Path))

	// Same second: the next video gets a suffix
	again, err := store.NewVideo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04-13-07-09-1", again.DisplayName)
	assert.NotEqual(t, video.ID, again.ID)

	media, err := store.Get(t.Context(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, media.Status)
}

func TestConcurrentPhotosGetDistinctNames(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)

	const requests = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = make(map[string]bool, requests)
		errs  []error
	)
	for range requests {
		wg.Go(func() {
			dest, err := store.NewPhoto(t.Context())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			paths[dest.Path] = true
		})
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Len(t, paths, requests)
	assert.True(t, paths[filepath.Join(store.cfg.PhotoDir, "2026-05-04-13-07-09-042.jpg")])
	assert.True(t, paths[filepath.Join(store.cfg.PhotoDir, "2026-05-04-13-07-09-042-7.jpg")])
}

func TestCompleteAndFail(t *testing.T) {
	t.Parallel()

	store, registry := openTestStore(t)

	photo, err := store.NewPhoto(t.Context())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(photo.Path, []byte("jpegdata"), 0o600))

	// Read while pending, then change the row
	_, err = store.Get(t.Context(), photo.ID)
	require.NoError(t, err)
	require.NoError(t, store.Complete(t.Context(), photo.ID, photo.Path, 0, 0))

	media, err := store.Get(t.Context(), photo.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, media.Status)
	assert.Equal(t, photo.Path, media.Location)
	assert.Equal(t, int64(8), media.Bytes, "size read from disk")

	video, err := store.NewVideo(t.Context())
	require.NoError(t, err)
	require.NoError(t, store.Fail(t.Context(), video.ID, "source inactive"))
	media, err = store.Get(t.Context(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, media.Status)
	assert.Equal(t, "source inactive", media.Error)

	err = store.Complete(t.Context(), "missing", "/nowhere", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = store.Get(t.Context(), "missing")
	assert.True(t, errors.IsNotFound(err))

	count, err := testutil.GatherAndCount(registry, "camcore_media_index_operations_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestList(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	for range 3 {
		_, err := store.NewPhoto(t.Context())
		require.NoError(t, err)
	}
	_, err := store.NewVideo(t.Context())
	require.NoError(t, err)

	photos, err := store.List(t.Context(), camera.MediaPhoto, 0)
	require.NoError(t, err)
	assert.Len(t, photos, 3)

	all, err := store.List(t.Context(), "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInMemoryDatabase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := Open(Config{
		PhotoDir: filepath.Join(dir, "p"),
		VideoDir: filepath.Join(dir, "v"),
		Database: ":memory:",
	}, nil)
	require.NoError(t, err)
	defer store.Close()

	dest, err := store.NewPhoto(t.Context())
	require.NoError(t, err)
	_, err = store.Get(t.Context(), dest.ID)
	require.NoError(t, err)
}

func TestConsumerUpdatesIndex(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	consumer := NewConsumer(store)
	assert.Equal(t, "media_index", consumer.Name())

	video, err := store.NewVideo(t.Context())
	require.NoError(t, err)
	photo, err := store.NewPhoto(t.Context())
	require.NoError(t, err)

	require.NoError(t, consumer.Consume(events.Event{Type: events.TypeRecordingStarted, MediaID: video.ID}))
	require.NoError(t, consumer.Consume(events.Event{
		Type:       events.TypeRecordingFinalized,
		MediaID:    video.ID,
		Location:   video.Path,
		Bytes:      2048,
		DurationMs: 3000,
	}))
	require.NoError(t, consumer.Consume(events.Event{Type: events.TypeCaptureFailed, MediaID: photo.ID, Error: "busy"}))
	require.NoError(t, consumer.Consume(events.Event{Type: events.TypeLuminosity}))

	media, err := store.Get(t.Context(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, media.Status)
	assert.Equal(t, int64(2048), media.Bytes)
	assert.Equal(t, int64(3000), media.DurationMs)

	media, err = store.Get(t.Context(), photo.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, media.Status)
}
