package variable

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/itchyny/gojq"
)

// FileSource resolves variables against a JSON document on disk. A variable
// name may be a dotted path ("db.host") evaluated against the document with
// a gojq query, so one file can back many logically-nested variables.
//
// The file is watched with fsnotify; Synchronize also re-reads and diffs
// unconditionally so a missed/ debounced fsnotify event never desyncs the
// source from disk.
type FileSource struct {
	path string
	log  logr.Logger

	mu       sync.RWMutex
	doc      map[string]interface{}
	prevFlat map[string]string

	watcher *fsnotify.Watcher
	events  chan struct{}
}

// NewFileSource loads path once and starts watching it for changes.
func NewFileSource(path string, log logr.Logger) (*FileSource, error) {
	f := &FileSource{path: path, log: log, events: make(chan struct{}, 1)}
	if err := f.reload(); err != nil {
		return nil, err
	}
	f.prevFlat = flatten("", f.doc)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Watching is a convenience; the source still works via
		// Synchronize's unconditional re-read.
		f.log.V(1).Info("file source: watcher unavailable, falling back to poll-on-refresh", "path", path, "error", err.Error())
		return f, nil
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		f.log.V(1).Info("file source: watch add failed, falling back to poll-on-refresh", "path", path, "error", err.Error())
		return f, nil
	}
	f.watcher = watcher
	go f.watchLoop()
	return f, nil
}

func (f *FileSource) watchLoop() {
	for event := range f.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			select {
			case f.events <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops the underlying file watcher, if one was started.
func (f *FileSource) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FileSource) reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	return nil
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Lookup(_ context.Context, name string) (Variable, error) {
	f.mu.RLock()
	doc := f.doc
	f.mu.RUnlock()

	val, err := queryPath(doc, name)
	if err != nil {
		return Variable{}, err
	}
	return Variable{Name: name, Kind: kindOf(val), Value: val}, nil
}

func queryPath(doc map[string]interface{}, dottedName string) (interface{}, error) {
	query, err := gojq.Parse("." + dottedName)
	if err != nil {
		return nil, ErrNotFound
	}
	iter := query.Run(map[string]interface{}(doc))
	v, ok := iter.Next()
	if !ok {
		return nil, ErrNotFound
	}
	if err, ok := v.(error); ok {
		_ = err
		return nil, ErrNotFound
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func kindOf(v interface{}) Kind {
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBool
	case float64:
		return KindFloat
	default:
		return KindJSON
	}
}

// Synchronize re-reads the file (draining any pending fsnotify signal) and
// returns which top-level-or-nested flattened keys changed value.
func (f *FileSource) Synchronize(_ context.Context) ([]string, error) {
	select {
	case <-f.events:
	default:
	}
	if err := f.reload(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	flat := flatten("", f.doc)
	var changed []string
	for k, v := range flat {
		if f.prevFlat[k] != v {
			changed = append(changed, k)
		}
	}
	for k := range f.prevFlat {
		if _, ok := flat[k]; !ok {
			changed = append(changed, k)
		}
	}
	f.prevFlat = flat
	return changed, nil
}

func flatten(prefix string, m map[string]interface{}) map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		raw, _ := json.Marshal(v)
		out[key] = string(raw)
	}
	return out
}
