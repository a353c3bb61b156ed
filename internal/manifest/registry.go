package manifest

import (
	"fmt"
	"sort"
	"sync"

	"pixelsense/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Registry holds the active manifest set. Lookups are cheap; the whole set
// is swapped atomically when the manifest directory changes on disk. A swap
// changes what later lookups return; waves already built from the registry
// keep the manifests they were built with.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]*WaveManifest
	dir       string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry builds a registry from the embedded defaults overlaid with any
// manifests found in dir (by wave name). Pass dir == "" for defaults only.
func NewRegistry(dir string, overrides map[string]map[string]interface{}) (*Registry, error) {
	base, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*WaveManifest, len(base))
	for _, m := range base {
		merged[m.Name] = m
	}
	if dir != "" {
		local, err := LoadDirectory(dir)
		if err != nil {
			return nil, err
		}
		for _, m := range local {
			merged[m.Name] = m
		}
	}
	for name, m := range merged {
		m.ApplyOverrides(overrides[name])
	}

	return &Registry{manifests: merged, dir: dir}, nil
}

// Get returns the manifest for a wave name.
func (r *Registry) Get(name string) (*WaveManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[name]
	return m, ok
}

// All returns the active manifest set sorted by descending priority,
// name as the tiebreak.
func (r *Registry) All() []*WaveManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WaveManifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Enabled returns the enabled subset of All.
func (r *Registry) Enabled() []*WaveManifest {
	all := r.All()
	out := all[:0:0]
	for _, m := range all {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// reload re-reads the manifest directory and swaps the set in atomically.
// An invalid update is logged and the previous set stays active.
func (r *Registry) reload(overrides map[string]map[string]interface{}) {
	log := logging.Get(logging.CategoryConfig)

	base, err := LoadEmbedded()
	if err != nil {
		log.Error("manifest reload failed (embedded): %v", err)
		return
	}
	merged := make(map[string]*WaveManifest, len(base))
	for _, m := range base {
		merged[m.Name] = m
	}
	local, err := LoadDirectory(r.dir)
	if err != nil {
		log.Error("manifest reload failed, keeping previous set: %v", err)
		return
	}
	for _, m := range local {
		merged[m.Name] = m
	}
	for name, m := range merged {
		m.ApplyOverrides(overrides[name])
	}

	r.mu.Lock()
	r.manifests = merged
	r.mu.Unlock()
	log.Info("manifest set reloaded: %d waves", len(merged))
}

// Watch starts a filesystem watcher over the manifest directory and reloads
// on changes. Stop with Close.
func (r *Registry) Watch(overrides map[string]map[string]interface{}) error {
	if r.dir == "" {
		return fmt.Errorf("no manifest directory to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	r.watcher = w
	r.done = make(chan struct{})
	go func() {
		log := logging.Get(logging.CategoryConfig)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 && isYAML(ev.Name) {
					log.Debug("manifest change detected: %s", ev.Name)
					r.reload(overrides)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("manifest watcher error: %v", err)
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	err := r.watcher.Close()
	r.watcher = nil
	return err
}
