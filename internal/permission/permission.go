// Package permission provides the capability grant sources consulted by the
// capture core's permission gate.
package permission

import (
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// ComponentPermission identifies errors raised by grant sources
const ComponentPermission = "permission"

// Manager is a grant source whose grants can be changed at runtime
type Manager interface {
	camera.PermissionSource
	Grant(c camera.Capability) error
	Revoke(c camera.Capability) error
	Snapshot() map[camera.Capability]bool
}

// GetLogger returns the permission module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("permission")
}

// StaticSource keeps grants in memory
type StaticSource struct {
	mu     sync.RWMutex
	grants map[camera.Capability]bool
}

// NewStaticSource creates a source with the given initial grants
func NewStaticSource(cameraGranted, microphoneGranted bool) *StaticSource {
	return &StaticSource{grants: map[camera.Capability]bool{
		camera.CapabilityCamera:     cameraGranted,
		camera.CapabilityMicrophone: microphoneGranted,
	}}
}

// Granted implements camera.PermissionSource
func (s *StaticSource) Granted(c camera.Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[c]
}

// Grant grants c
func (s *StaticSource) Grant(c camera.Capability) error {
	s.set(c, true)
	return nil
}

// Revoke revokes c
func (s *StaticSource) Revoke(c camera.Capability) error {
	s.set(c, false)
	return nil
}

func (s *StaticSource) set(c camera.Capability, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[c] = granted
	GetLogger().Info("permission changed",
		logger.String("capability", string(c)),
		logger.Bool("granted", granted))
}

// Snapshot returns a copy of the grants
func (s *StaticSource) Snapshot() map[camera.Capability]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.grants)
}

// grantsFile is the on-disk layout of a FileSource
type grantsFile struct {
	Grants map[camera.Capability]bool `yaml:"grants"`
}

// FileSource reads grants from a YAML file on every query, so edits made by
// another process apply to the next gated call. A missing or unreadable file
// grants nothing.
//
//	grants:
//	  camera: true
//	  microphone: false
type FileSource struct {
	path string
	mu   sync.Mutex
}

// NewFileSource creates a source backed by path. The file is not created
// until the first Grant or Revoke.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the grants file
func (f *FileSource) Path() string { return f.path }

// Granted implements camera.PermissionSource
func (f *FileSource) Granted(c camera.Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	grants, err := f.read()
	if err != nil {
		GetLogger().Warn("reading grants file failed",
			logger.String("path", f.path),
			logger.Error(err))
		return false
	}
	return grants[c]
}

// Snapshot returns the grants currently on disk
func (f *FileSource) Snapshot() map[camera.Capability]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	grants, err := f.read()
	if err != nil {
		return map[camera.Capability]bool{}
	}
	return grants
}

// Grant records a grant for c in the file
func (f *FileSource) Grant(c camera.Capability) error {
	return f.write(c, true)
}

// Revoke records a revocation for c in the file
func (f *FileSource) Revoke(c camera.Capability) error {
	return f.write(c, false)
}

func (f *FileSource) read() (map[camera.Capability]bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[camera.Capability]bool{}, nil
		}
		return nil, errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryFileIO).
			Context("operation", "read_grants").
			Build()
	}

	var file grantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_grants").
			Build()
	}
	if file.Grants == nil {
		file.Grants = map[camera.Capability]bool{}
	}
	return file.Grants, nil
}

func (f *FileSource) write(c camera.Capability, granted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	grants, err := f.read()
	if err != nil {
		return err
	}
	grants[c] = granted

	data, err := yaml.Marshal(grantsFile{Grants: grants})
	if err != nil {
		return errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryConfiguration).
			Context("operation", "encode_grants").
			Build()
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		return err
	}

	GetLogger().Info("permission changed",
		logger.String("capability", string(c)),
		logger.Bool("granted", granted),
		logger.String("path", f.path))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Build()
	}

	tmp, err := os.CreateTemp(dir, ".grants-*.yaml")
	if err != nil {
		return errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp").
			Build()
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	_, writeErr := tmp.Write(data)
	if err := errors.Join(writeErr, tmp.Close()); err != nil {
		return errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryFileIO).
			Context("operation", "write_grants").
			Build()
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.New(err).
			Component(ComponentPermission).
			Category(errors.CategoryFileIO).
			Context("operation", "replace_grants").
			Build()
	}
	return nil
}
