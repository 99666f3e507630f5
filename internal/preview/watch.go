package preview

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-previews path every time it is written or recreated, calling fn
// with each installed table (the initial load included). Superseded loads are
// dropped. Watch blocks until ctx is done or the watcher fails.
func Watch(ctx context.Context, path string, e *Engine, fn func(Table, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors replace files on save, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	load := func() {
		f, err := OpenLocal(abs)
		if err != nil {
			fn(RenderError(err), err)
			return
		}
		go func() {
			res := <-e.LoadFile(ctx, f)
			if res.Superseded || ctx.Err() != nil {
				return
			}
			fn(res.Table, res.Err)
		}()
	}

	load()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				load()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}
