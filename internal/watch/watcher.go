// Package watch re-renders design documents as they change and pushes the
// results to browser previews over websockets.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
)

// defaultDebounce applies when the configuration leaves debounce unset
const defaultDebounce = 200 * time.Millisecond

// FileWatcher monitors Markdown files below a set of paths. Directories
// are watched recursively; files named directly are watched on their own.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	paths     []string
	ignored   []string
	logger    *zap.Logger

	mu    sync.Mutex
	roots []string
	files map[string]bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileWatcher creates a new file watcher instance. onChange receives the
// changed files, debounced.
func NewFileWatcher(cfg config.WatchConfig, onChange func([]string), logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounce, onChange),
		paths:     paths,
		ignored:   cfg.Ignore,
		logger:    logger,
		files:     make(map[string]bool),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start registers the configured paths and begins watching
func (fw *FileWatcher) Start() error {
	for _, path := range fw.paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}

		if info.IsDir() {
			fw.mu.Lock()
			fw.roots = append(fw.roots, abs)
			fw.mu.Unlock()
			if err := fw.addTree(abs); err != nil {
				return err
			}
			continue
		}

		fw.mu.Lock()
		fw.files[abs] = true
		fw.mu.Unlock()
		if err := fw.watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(abs), err)
		}
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		fw.wg.Wait()
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

// Scan lists every Markdown file the watcher covers, sorted
func (fw *FileWatcher) Scan() ([]string, error) {
	fw.mu.Lock()
	roots := append([]string(nil), fw.roots...)
	var files []string
	for file := range fw.files {
		files = append(files, file)
	}
	fw.mu.Unlock()

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && fw.shouldIgnore(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && IsMarkdown(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// watch is the main event loop
func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if fw.shouldIgnore(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if event.Has(fsnotify.Create) && fw.underRoot(event.Name) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addTree(event.Name); err != nil {
				fw.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if fw.relevant(event.Name) {
		fw.logger.Debug("file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
		fw.debouncer.Add(event.Name)
	}
}

func (fw *FileWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fw.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		fw.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}

// relevant reports whether a changed path is a Markdown file this watcher
// covers
func (fw *FileWatcher) relevant(path string) bool {
	if !IsMarkdown(path) {
		return false
	}
	fw.mu.Lock()
	explicit := fw.files[path]
	fw.mu.Unlock()
	return explicit || fw.underRoot(path)
}

func (fw *FileWatcher) underRoot(path string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, root := range fw.roots {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnore reports hidden entries and entries matching an ignore
// pattern by base name
func (fw *FileWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}
	for _, pattern := range fw.ignored {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether path has a Markdown extension
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
