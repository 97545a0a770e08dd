package classify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

const reloadDebounce = 100 * time.Millisecond

// fileEntry is one line of the classification file.
type fileEntry struct {
	App      string `yaml:"app"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type classificationFile struct {
	Classifications []fileEntry `yaml:"classifications"`
}

// FileSync loads a YAML classification file into the store and reloads it
// whenever the file changes on disk.
//
// Example file:
//
//	classifications:
//	  - app: firefox
//	    name: Firefox
//	    category: negative
//	  - app: code
//	    category: positive
type FileSync struct {
	path   string
	store  domain.ClassificationStore
	logger *zap.Logger

	mu            sync.Mutex
	watcher       *fsnotify.Watcher
	stopChan      chan struct{}
	debounceTimer *time.Timer
	onReload      func(applied int, err error)
}

// NewFileSync creates a syncer for path. Nothing is read until Load or Watch.
func NewFileSync(path string, store domain.ClassificationStore, logger *zap.Logger) *FileSync {
	return &FileSync{
		path:     path,
		store:    store,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// OnReload registers a callback invoked after every reload triggered by the watcher.
func (f *FileSync) OnReload(fn func(applied int, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReload = fn
}

// Load parses the file and upserts every entry. A missing file applies nothing.
// Entries already present keep their AddedAt timestamp.
func (f *FileSync) Load(ctx context.Context) (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read classification file: %w", err)
	}

	var file classificationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse classification file: %w", err)
	}

	now := time.Now()
	applied := 0
	for _, e := range file.Classifications {
		if e.App == "" {
			f.logger.Warn("skipping classification without app", zap.String("file", f.path))
			continue
		}
		category, err := domain.ParseCategory(e.Category)
		if err != nil {
			f.logger.Warn("skipping classification",
				zap.String("app", e.App),
				zap.Error(err))
			continue
		}

		record := domain.Classification{
			AppID:     e.App,
			AppName:   e.Name,
			Category:  category,
			AddedAt:   now,
			UpdatedAt: now,
		}
		if existing, err := f.store.Get(ctx, e.App); err == nil {
			record.AddedAt = existing.AddedAt
		}

		if err := f.store.Upsert(ctx, record); err != nil {
			return applied, fmt.Errorf("upsert %s: %w", e.App, err)
		}
		applied++
	}

	f.logger.Info("classification file loaded",
		zap.String("file", f.path),
		zap.Int("applied", applied))
	return applied, nil
}

// Watch starts watching the file's directory. Call Close to stop.
func (f *FileSync) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory to catch editors that replace the file.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			f.logger.Error("failed to close watcher", zap.Error(closeErr))
		}
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	f.mu.Lock()
	f.watcher = watcher
	f.mu.Unlock()

	go f.watchLoop(watcher)
	return nil
}

func (f *FileSync) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			f.mu.Lock()
			if f.debounceTimer != nil {
				f.debounceTimer.Stop()
			}
			f.debounceTimer = time.AfterFunc(reloadDebounce, f.reload)
			f.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("classification watcher error", zap.Error(err))

		case <-f.stopChan:
			return
		}
	}
}

func (f *FileSync) reload() {
	applied, err := f.Load(context.Background())
	if err != nil {
		f.logger.Error("classification reload failed", zap.Error(err))
	}

	f.mu.Lock()
	onReload := f.onReload
	f.mu.Unlock()

	if onReload != nil {
		onReload(applied, err)
	}
}

// Close stops the watcher.
func (f *FileSync) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.stopChan:
		return nil
	default:
		close(f.stopChan)
	}

	if f.debounceTimer != nil {
		f.debounceTimer.Stop()
	}
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}
