package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and watching the configuration file.
type Loader struct {
	path      string
	watcher   *fsnotify.Watcher
	current   *FileConfig
	mu        sync.RWMutex
	onChange  func(*FileConfig)
	onError   func(error)
	close     chan struct{}
	closeOnce sync.Once
}

// NewLoader creates a Loader for path.
func NewLoader(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	return &Loader{
		path:  absPath,
		close: make(chan struct{}),
	}, nil
}

// Load reads the configuration file, expands environment variables, parses
// the YAML document over the defaults, and validates it. The previous
// configuration is retained when the new document fails to load.
func (l *Loader) Load() (*FileConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()

	return cfg, nil
}

// Watch starts monitoring the config file for changes. onChange runs only
// when the changed file loads and validates cleanly; a broken document
// leaves the current configuration untouched and is reported through
// onError instead. Either callback may be nil.
func (l *Loader) Watch(onChange func(*FileConfig), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher
	l.onChange = onChange
	l.onError = onError

	go l.watchLoop()

	// Watch the directory: editors save atomically via rename, which drops
	// watches placed on the file itself.
	dir := filepath.Dir(l.path)
	if err := l.watcher.Add(dir); err != nil {
		l.watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	return nil
}

func (l *Loader) watchLoop() {
	for {
		select {
		case <-l.close:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				newConfig, err := l.Load()
				if err != nil {
					if l.onError != nil {
						l.onError(err)
					}
					continue
				}
				if l.onChange != nil {
					l.onChange(newConfig)
				}
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *FileConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Close stops the watcher. Safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.close)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}
