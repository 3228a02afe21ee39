package shard

import (
	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/bones/internal/bonerr"
)

// Watcher lets a long-lived caller (TUI) learn that a shard file changed on
// disk so it can trigger incremental_apply without polling. The engine
// itself never uses this — §5 keeps append/project synchronous.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher starts watching the events directory for changes.
func NewWatcher(m *Manager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "creating shard watcher", err)
	}
	if err := fsw.Add(m.eventsDir()); err != nil {
		fsw.Close()
		return nil, bonerr.Wrap(bonerr.IO, "watching events directory", err)
	}
	return &Watcher{fsw: fsw}, nil
}

// Changed returns the channel of every fsnotify event on the events
// directory (writes, creates, removes, renames, chmods); it does not filter
// by operation or file name.
func (w *Watcher) Changed() <-chan fsnotify.Event {
	return w.fsw.Events
}

// Errors returns the watcher's error channel.
func (w *Watcher) Errors() <-chan error {
	return w.fsw.Errors
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
