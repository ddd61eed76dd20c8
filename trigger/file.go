package trigger

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/unkn0wn-root/expcache"
)

// File fires the first time the watched file is written, created, removed,
// renamed or has its mode changed. The parent directory is watched so
// editors that replace files atomically are noticed too.
//
// A File holds an OS watch until it fires or Close is called.
type File struct {
	path string
	w    *fsnotify.Watcher

	fired     atomic.Bool
	mu        sync.Mutex
	next      uint64
	fns       map[uint64]func()
	closeOnce sync.Once
}

var _ expcache.Trigger = (*File)(nil)

func WatchFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("trigger: resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("trigger: new watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("trigger: watch %s: %w", path, err)
	}

	f := &File{
		path: filepath.Clean(abs),
		w:    w,
		fns:  make(map[uint64]func()),
	}
	go f.loop()
	return f, nil
}

// Path is the absolute path being watched.
func (f *File) Path() string { return f.path }

func (f *File) Expired() bool         { return f.fired.Load() }
func (f *File) ActiveCallbacks() bool { return true }

// Register runs fn once the file changes. If it already changed, fn runs
// right away on a new goroutine.
func (f *File) Register(fn func()) func() {
	f.mu.Lock()
	if f.fired.Load() {
		f.mu.Unlock()
		go fn()
		return func() {}
	}
	f.next++
	id := f.next
	f.fns[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.fns, id)
		f.mu.Unlock()
	}
}

// Close releases the watch without firing.
func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() { err = f.w.Close() })
	return err
}

func (f *File) loop() {
	for {
		select {
		case ev, ok := <-f.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			f.fire()
			go f.Close() // not from this goroutine: the watcher may be blocked handing us an event
			return
		case _, ok := <-f.w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *File) fire() {
	f.mu.Lock()
	if !f.fired.CompareAndSwap(false, true) {
		f.mu.Unlock()
		return
	}
	fns := f.fns
	f.fns = nil
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
