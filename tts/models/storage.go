package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/fsnotify/fsnotify"
)

// Storage resolves model ids to local directories.
type Storage interface {
	// ModelPath returns the directory of a complete local copy of id, or
	// "" when there is none.
	ModelPath(id string) string
	IsAvailable(id string) bool
	DownloadedModels() []string
	BundledModels() []string
	Delete(id string) error
	AvailableSpace() (int64, error)
	UsedSpace() (int64, error)
}

// Change reports that a model appeared or disappeared on disk.
type Change struct {
	ID        string
	Available bool
}

// DiskStorage keeps downloaded models under root, one directory per id.
type DiskStorage struct {
	root     string
	bundled  []string
	registry *Registry
	log      *log.Logger

	mu         sync.RWMutex
	downloaded map[string]string
	bundle     map[string]string

	watcher *fsnotify.Watcher
	changes chan Change
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ Storage = (*DiskStorage)(nil)

// StorageOption configures a DiskStorage.
type StorageOption func(*DiskStorage)

// WithBundled adds read-only directories that contain one subdirectory per
// model id.
func WithBundled(dirs ...string) StorageOption {
	return func(s *DiskStorage) { s.bundled = append(s.bundled, dirs...) }
}

// WithRegistry makes completeness checks use each model's required files.
func WithRegistry(r *Registry) StorageOption {
	return func(s *DiskStorage) { s.registry = r }
}

// WithStorageLogger sets the logger.
func WithStorageLogger(l *log.Logger) StorageOption {
	return func(s *DiskStorage) { s.log = logging.OrDefault(l, "models") }
}

// NewDiskStorage creates root if needed and indexes what is already there.
func NewDiskStorage(root string, opts ...StorageOption) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	s := &DiskStorage{
		root:    root,
		log:     logging.OrDefault(nil, "models"),
		changes: make(chan Change, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rescan()
	return s, nil
}

// Root returns the download directory.
func (s *DiskStorage) Root() string { return s.root }

// Dir returns where a downloaded copy of id lives, whether or not it exists.
func (s *DiskStorage) Dir(id string) string { return filepath.Join(s.root, id) }

// ModelPath implements Storage. Downloaded copies win over bundled ones.
func (s *DiskStorage) ModelPath(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.downloaded[id]; ok {
		return p
	}
	return s.bundle[id]
}

// IsAvailable implements Storage.
func (s *DiskStorage) IsAvailable(id string) bool {
	return s.ModelPath(id) != ""
}

// DownloadedModels implements Storage.
func (s *DiskStorage) DownloadedModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.downloaded)
}

// BundledModels implements Storage.
func (s *DiskStorage) BundledModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.bundle)
}

// Delete implements Storage. Bundled models cannot be deleted.
func (s *DiskStorage) Delete(id string) error {
	if !validID(id) {
		return tts.Errorf(tts.KindModelNotFound, "invalid model id %q", id)
	}
	dir := s.Dir(id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return tts.NewError(tts.KindModelNotFound, "model not downloaded", nil).
				WithContext("model", id)
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	s.log.Info("Model deleted", "model", id)
	s.rescan()
	return nil
}

// Install moves a fully populated directory into place as model id,
// replacing any previous copy.
func (s *DiskStorage) Install(id, dir string) error {
	if !validID(id) {
		return tts.Errorf(tts.KindModelDownloadFailed, "invalid model id %q", id)
	}
	if !s.complete(id, dir) {
		return tts.NewError(tts.KindModelDownloadFailed, "model files incomplete", nil).
			WithContext("model", id)
	}

	dst := s.Dir(id)
	old := dst + ".old"
	_ = os.RemoveAll(old)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("failed to move previous copy aside: %w", err)
		}
	}
	if err := os.Rename(dir, dst); err != nil {
		_ = os.Rename(old, dst)
		return fmt.Errorf("failed to install model: %w", err)
	}
	_ = os.RemoveAll(old)

	s.rescan()
	return nil
}

// AvailableSpace implements Storage.
func (s *DiskStorage) AvailableSpace() (int64, error) {
	return availableSpace(s.root)
}

// UsedSpace implements Storage. It counts downloaded models only.
func (s *DiskStorage) UsedSpace() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Watch starts tracking changes made to root by other processes.
func (s *DiskStorage) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.root); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.root, err)
	}
	for _, id := range sortedKeys(s.downloaded) {
		_ = w.Add(s.Dir(id))
	}

	s.watcher = w
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.watch(w, s.done)
	s.log.Debug("Watching models directory", "dir", s.root)
	return nil
}

func (s *DiskStorage) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == s.root {
				_ = w.Add(ev.Name)
			}
			s.log.Debug("Models directory changed", "file", ev.Name, "event", ev.Op)
			s.rescan()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Debug("Watcher error", "dir", s.root, "error", err)
		}
	}
}

// Changes delivers availability changes found by rescans. Slow readers
// miss changes rather than block the watcher.
func (s *DiskStorage) Changes() <-chan Change { return s.changes }

// Close stops the watcher.
func (s *DiskStorage) Close() error {
	s.mu.Lock()
	w := s.watcher
	done := s.done
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	close(done)
	err := w.Close()
	s.wg.Wait()
	return err
}

// rescan rebuilds the index and reports what changed.
func (s *DiskStorage) rescan() {
	downloaded := s.scan(s.root, true)
	bundle := make(map[string]string)
	for _, dir := range s.bundled {
		for id, p := range s.scan(dir, false) {
			if _, ok := bundle[id]; !ok {
				bundle[id] = p
			}
		}
	}

	s.mu.Lock()
	before := union(s.downloaded, s.bundle)
	s.downloaded = downloaded
	s.bundle = bundle
	after := union(downloaded, bundle)
	s.mu.Unlock()

	for id := range after {
		if !before[id] {
			s.publish(Change{ID: id, Available: true})
		}
	}
	for id := range before {
		if !after[id] {
			s.publish(Change{ID: id, Available: false})
		}
	}
}

func (s *DiskStorage) publish(c Change) {
	select {
	case s.changes <- c:
	default:
	}
}

func (s *DiskStorage) scan(root string, skipHidden bool) map[string]string {
	found := make(map[string]string)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Failed to read models directory", "dir", root, "error", err)
		}
		return found
	}
	for _, e := range entries {
		if !e.IsDir() || !validID(e.Name()) {
			continue
		}
		if skipHidden && strings.HasSuffix(e.Name(), ".old") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if s.complete(e.Name(), dir) {
			found[e.Name()] = dir
		}
	}
	return found
}

// complete reports whether dir holds every file the model needs. Without a
// catalog entry any non-empty directory counts.
func (s *DiskStorage) complete(id, dir string) bool {
	if s.registry != nil {
		if desc, ok := s.registry.GetModelByID(id); ok && len(desc.RequiredFiles) > 0 {
			return hasFiles(dir, desc.RequiredFiles)
		}
	}
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func hasFiles(dir string, files []string) bool {
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// validID rejects ids that would escape the models directory.
func validID(id string) bool {
	return id != "" && !strings.HasPrefix(id, ".") &&
		!strings.ContainsAny(id, `/\`) && id != ".."
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func union(a, b map[string]string) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
