package httpd

import (
	"path/filepath"
	"plugin"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrorCallback reports a non-fatal error (spec.md §4.8's "error
// callback": a missing id/symbol produces a 500-stub handler, not a
// crash).
type ErrorCallback func(err error)

// dynamicEntry is one registered externally loaded code unit (spec.md §3
// "Dynamic registry entry").
type dynamicEntry struct {
	reference string
	handle    *plugin.Plugin
}

// DynamicRegistry loads externally built Go plugins and resolves named
// handler symbols from them (spec.md §4.8). It owns every loaded handle
// for its lifetime.
type DynamicRegistry struct {
	mu      sync.Mutex
	entries map[int]*dynamicEntry
	nextID  int

	onError ErrorCallback
	watcher *fsnotify.Watcher
	log     Logger
}

// NewDynamicRegistry creates an empty registry.
func NewDynamicRegistry(onError ErrorCallback, log Logger) *DynamicRegistry {
	if onError == nil {
		onError = func(error) {}
	}
	if log == nil {
		log = discardLogger{}
	}
	return &DynamicRegistry{
		entries: make(map[int]*dynamicEntry),
		onError: onError,
		log:     log,
	}
}

// Register opens the plugin at reference and assigns it an id >= 1. It
// returns 0 on failure (file missing, not a valid plugin, etc.), per
// spec.md §4.8.
func (d *DynamicRegistry) Register(reference string) int {
	handle, err := plugin.Open(reference)
	if err != nil {
		d.onError(err)
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.entries[id] = &dynamicEntry{reference: reference, handle: handle}
	return id
}

// Load resolves name against the code unit registered under id. If id is
// unknown or name cannot be resolved as a Handler, Load returns a stub
// producing 500 Internal Server Error and reports the failure via the
// error callback, rather than panicking the caller.
func (d *DynamicRegistry) Load(id int, name string) Handler {
	d.mu.Lock()
	entry, ok := d.entries[id]
	d.mu.Unlock()
	if !ok {
		d.onError(ErrInternal)
		return stubHandler
	}

	sym, err := entry.handle.Lookup(name)
	if err != nil {
		d.onError(err)
		return stubHandler
	}
	h, ok := sym.(Handler)
	if !ok {
		if fn, ok2 := sym.(func(map[string]string, *Request, map[string]string) *Response); ok2 {
			return Handler(fn)
		}
		d.onError(ErrInternal)
		return stubHandler
	}
	return h
}

func stubHandler(map[string]string, *Request, map[string]string) *Response {
	return ErrorBody(500, "dynamic handler unavailable")
}

// WatchDir starts an fsnotify watch on dir, auto-registering any new
// ".so" file that appears (an extension of §4.8's register/load
// contract: hot-reload of newly dropped plugins without a restart).
func (d *DynamicRegistry) WatchDir(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	d.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if (ev.Op&fsnotify.Create == fsnotify.Create) && filepath.Ext(ev.Name) == ".so" {
					if id := d.Register(ev.Name); id == 0 {
						d.log.Errorw("dynamic handler hot-reload failed", "path", ev.Name)
					} else {
						d.log.Infow("dynamic handler hot-reloaded", "path", ev.Name, "id", id)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Errorw("dynamic handler watch error", "error", err.Error())
			}
		}
	}()
	return nil
}

// Close releases every externally loaded code-unit handle and stops the
// hot-reload watcher (spec.md §4.8 "shutdown releases all").
func (d *DynamicRegistry) Close() {
	d.mu.Lock()
	d.entries = make(map[int]*dynamicEntry)
	d.mu.Unlock()
	if d.watcher != nil {
		d.watcher.Close()
	}
}
