package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/jonoirwinrsa/image-service/contrib/config"
)

var _ config.Source = (*fileSource)(nil)

type fileSource struct {
	path string
}

// NewSource returns a config.Source that loads a single YAML or JSON file
// from disk. Format is inferred from the file extension.
func NewSource(path string) config.Source {
	return &fileSource{path: path}
}

// Load implements config.Source.
func (f *fileSource) Load() ([]*config.KeyValue, error) {
	buf, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	return []*config.KeyValue{
		{
			Key:    f.path,
			Value:  buf,
			Format: formatOf(f.path),
		},
	}, nil
}

// Watch implements config.Source, returning a Watcher backed by an fsnotify
// watch on the file's parent directory (editors typically replace a file via
// rename, which a direct inode watch would miss).
func (f *fileSource) Watch() (config.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return &fileWatcher{source: f, watcher: watcher}, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

type fileWatcher struct {
	source  *fileSource
	watcher *fsnotify.Watcher
}

// Next implements config.Watcher.
func (w *fileWatcher) Next() ([]*config.KeyValue, error) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil, nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.source.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			return w.source.Load()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil, nil
			}
			return nil, err
		}
	}
}

// Stop implements config.Watcher.
func (w *fileWatcher) Stop() error {
	return w.watcher.Close()
}
