package settings

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

// Watch calls fn with freshly loaded settings every time the file at path is
// written or replaced, until ctx is done. The parent directory is watched so
// editors that swap the file in place are caught. fn runs on the watcher
// goroutine and must hand the value over to the main thread itself.
func Watch(ctx context.Context, path string, fn func(Settings)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating settings watcher")
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", path)
	}
	dir := filepath.Dir(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watching %s", dir)
	}
	core.LogDebug("watching settings file %s", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s, err := LoadFrom(abs)
			if err != nil {
				core.LogWarn("ignoring settings change: %s", err)
				continue
			}
			core.LogInfo("settings reloaded from %s", abs)
			fn(s)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			core.LogWarn("settings watcher: %s", err)
		}
	}
}
