// Package mediastore names and indexes captured media. It hands out photo
// and video destinations to the capture core and records their outcome in
// a SQLite index.
package mediastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// ComponentMediaStore identifies errors raised by the media store
const ComponentMediaStore = "mediastore"

// File naming of destinations
const (
	nameLayout       = "2006-01-02-15-04-05"
	photoExt         = ".jpg"
	videoExt         = ".mjpeg"
	PhotoContentType = "image/jpeg"
	VideoContentType = "video/x-motion-jpeg"
)

const (
	defaultCacheTTL = 5 * time.Minute
	slowQuery       = 200 * time.Millisecond
	// maxNameAttempts bounds the suffixes tried when a name is taken
	maxNameAttempts = 100
)

// Config locates the media directories and the index database
type Config struct {
	PhotoDir string
	VideoDir string
	// Database is the SQLite file; ":memory:" keeps the index in RAM
	Database string
	CacheTTL time.Duration
}

// Store implements camera.DestinationFactory over a gorm index
type Store struct {
	cfg     Config
	db      *gorm.DB
	cache   *cache.Cache
	metrics *metrics.EventMetrics
	now     func() time.Time

	// names serializes the free-name lookup and the insert that claims it
	names sync.Mutex
}

var _ camera.DestinationFactory = (*Store)(nil)

// GetLogger returns the mediastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mediastore")
}

// Open creates the media directories, opens the index and migrates its schema.
// A nil metrics disables metric recording.
func Open(cfg Config, m *metrics.EventMetrics) (*Store, error) {
	if cfg.PhotoDir == "" || cfg.VideoDir == "" || cfg.Database == "" {
		return nil, errors.Newf("media store requires photo dir, video dir and database").
			Component(ComponentMediaStore).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	for _, dir := range []string{cfg.PhotoDir, cfg.VideoDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component(ComponentMediaStore).
				Category(errors.CategoryFileIO).
				Context("operation", "create_directory").
				Context("path", dir).
				Build()
		}
	}

	dsn := cfg.Database
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.New(err).
				Component(ComponentMediaStore).
				Category(errors.CategoryFileIO).
				Context("operation", "create_directory").
				Context("path", dsn).
				Build()
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dsn)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), slowQuery),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("database", cfg.Database).
			Build()
	}

	if cfg.Database == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(&Media{}); err != nil {
		return nil, errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	GetLogger().Info("media store opened",
		logger.String("database", cfg.Database),
		logger.String("photos", cfg.PhotoDir),
		logger.String("videos", cfg.VideoDir))

	return &Store{
		cfg:     cfg,
		db:      db,
		cache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		metrics: m,
		now:     time.Now,
	}, nil
}

// Close closes the index
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Build()
	}
	s.cache.Flush()
	return sqlDB.Close()
}

func (s *Store) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	s.metrics.RecordMediaOperation(operation, status)
}

// photoName formats t with millisecond resolution
func photoName(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format(nameLayout), t.Nanosecond()/int(time.Millisecond))
}

// NewPhoto names a photo after the current time and registers it as pending
func (s *Store) NewPhoto(ctx context.Context) (camera.Destination, error) {
	return s.create(ctx, camera.MediaPhoto, photoName(s.now()), s.cfg.PhotoDir, photoExt, PhotoContentType)
}

// NewVideo names a video after the current time and registers it as pending
func (s *Store) NewVideo(ctx context.Context) (camera.Destination, error) {
	return s.create(ctx, camera.MediaVideo, s.now().Format(nameLayout), s.cfg.VideoDir, videoExt, VideoContentType)
}

func (s *Store) create(ctx context.Context, kind camera.MediaKind, name, dir, ext, contentType string) (camera.Destination, error) {
	media := Media{
		ID:          uuid.NewString(),
		Kind:        string(kind),
		ContentType: contentType,
		Status:      StatusPending,
	}

	// Two requests in the same second or millisecond get a numeric suffix.
	// Another process sharing the index can still claim a name between the
	// count and the insert; the unique path index turns that into a retry.
	s.names.Lock()
	var (
		err     error
		created bool
	)
	for attempt := range maxNameAttempts {
		media.DisplayName = name
		if attempt > 0 {
			media.DisplayName = fmt.Sprintf("%s-%d", name, attempt)
		}
		media.Path = filepath.Join(dir, media.DisplayName+ext)

		var taken int64
		if err = s.db.WithContext(ctx).Model(&Media{}).Where("path = ?", media.Path).Count(&taken).Error; err != nil {
			break
		}
		if taken > 0 {
			continue
		}
		err = s.db.WithContext(ctx).Create(&media).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = nil
			continue
		}
		created = err == nil
		break
	}
	s.names.Unlock()
	s.record("create", err)

	if err != nil {
		return camera.Destination{}, errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", "create").
			Context("kind", string(kind)).
			Build()
	}
	if !created {
		return camera.Destination{}, errors.Newf("no free name for %s %s", kind, name).
			Component(ComponentMediaStore).
			Category(errors.CategoryLimit).
			Build()
	}

	GetLogger().Debug("destination created",
		logger.String("media_id", media.ID),
		logger.String("display_name", media.DisplayName))

	return camera.Destination{
		ID:          media.ID,
		Kind:        kind,
		Path:        media.Path,
		DisplayName: media.DisplayName,
		ContentType: media.ContentType,
	}, nil
}

// Complete marks an entry as written at location
func (s *Store) Complete(ctx context.Context, id, location string, bytes int64, duration time.Duration) error {
	if bytes == 0 && location != "" {
		if info, err := os.Stat(location); err == nil {
			bytes = info.Size()
		}
	}
	return s.update(ctx, "complete", id, map[string]any{
		"status":      StatusComplete,
		"location":    location,
		"bytes":       bytes,
		"duration_ms": duration.Milliseconds(),
		"error":       "",
	})
}

// Fail marks an entry as failed with reason
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.update(ctx, "fail", id, map[string]any{
		"status": StatusFailed,
		"error":  reason,
	})
}

func (s *Store) update(ctx context.Context, operation, id string, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&Media{}).Where("id = ?", id).Updates(fields)
	err := result.Error
	if err == nil && result.RowsAffected == 0 {
		err = errors.Newf("media %s not found", id).
			Component(ComponentMediaStore).
			Category(errors.CategoryNotFound).
			Build()
	}
	s.record(operation, err)
	s.cache.Delete(id)

	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", operation).
			Context("media_id", id).
			Build()
	}
	return nil
}

// Get returns an entry by ID. Finished entries are cached until they change.
func (s *Store) Get(ctx context.Context, id string) (*Media, error) {
	if cached, found := s.cache.Get(id); found {
		if media, ok := cached.(Media); ok {
			return &media, nil
		}
	}

	var media Media
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&media).Error
	s.record("get", err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(err).
				Component(ComponentMediaStore).
				Category(errors.CategoryNotFound).
				Context("media_id", id).
				Build()
		}
		return nil, errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", "get").
			Context("media_id", id).
			Build()
	}

	// Pending entries are about to change
	if media.Status != StatusPending {
		s.cache.Set(id, media, cache.DefaultExpiration)
	}
	return &media, nil
}

// List returns the most recent entries of kind, or of every kind when kind is empty
func (s *Store) List(ctx context.Context, kind camera.MediaKind, limit int) ([]Media, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if kind != "" {
		query = query.Where("kind = ?", string(kind))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []Media
	err := query.Find(&items).Error
	s.record("list", err)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMediaStore).
			Category(errors.CategoryDatabase).
			Context("operation", "list").
			Build()
	}
	return items, nil
}
