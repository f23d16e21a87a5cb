package importer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lazypower/recall/internal/transcript"
)

// WatchOptions tunes Watch. Zero values take defaults.
type WatchOptions struct {
	// Debounce is how long a file must stay quiet before it is imported.
	Debounce time.Duration
	// PollInterval is the rescan period when file events are unavailable.
	PollInterval time.Duration
	// OnImport, when set, is called after each file is imported.
	OnImport func(path string, rep Report, err error)
}

func (o *WatchOptions) withDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
}

// Watch imports supported files that appear or change in dir until ctx is
// done. Files already present are not imported. When the platform watcher
// cannot be created or dies, Watch falls back to polling.
func (im *Importer) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	opts.withDefaults()
	if _, err := os.Stat(dir); err != nil {
		return err
	}

	seen := scan(dir)
	watcher := im.initWatcher(dir)
	if watcher == nil {
		return im.poll(ctx, dir, seen, opts)
	}
	defer watcher.Close()
	im.log.Info("watching", "dir", dir, "mode", "events")

	pending := make(map[string]bool)
	timer := newDebounceTimer()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return im.poll(ctx, dir, scan(dir), opts)
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !transcript.Supported(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			resetDebounceTimer(timer, opts.Debounce)

		case <-timer.C:
			for path := range pending {
				im.importOne(ctx, path, opts)
			}
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return im.poll(ctx, dir, scan(dir), opts)
			}
			im.log.Warn("watch: watcher error, falling back to polling", "err", err)
			for path := range pending {
				im.importOne(ctx, path, opts)
			}
			return im.poll(ctx, dir, scan(dir), opts)
		}
	}
}

func (im *Importer) initWatcher(dir string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		im.log.Warn("watch: cannot create watcher, polling", "err", err)
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		im.log.Warn("watch: cannot watch dir, polling", "dir", dir, "err", err)
		return nil
	}
	return watcher
}

// poll rescans dir every interval and imports files whose size or
// modification time changed since the previous scan.
func (im *Importer) poll(ctx context.Context, dir string, seen map[string]fileStamp, opts WatchOptions) error {
	im.log.Info("watching", "dir", dir, "mode", "poll", "interval", opts.PollInterval)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := scan(dir)
			for path, st := range now {
				if prev, ok := seen[path]; ok && prev == st {
					continue
				}
				im.importOne(ctx, path, opts)
			}
			seen = now
		}
	}
}

func (im *Importer) importOne(ctx context.Context, path string, opts WatchOptions) {
	rep, err := im.ImportFile(ctx, path)
	if err != nil {
		im.log.Warn("watch: import failed", "path", path, "err", err)
	}
	if opts.OnImport != nil {
		opts.OnImport(path, rep, err)
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// scan lists the supported files directly inside dir.
func scan(dir string) map[string]fileStamp {
	out := make(map[string]fileStamp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !transcript.Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(dir, e.Name())] = fileStamp{size: info.Size(), modTime: info.ModTime()}
	}
	return out
}

func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func resetDebounceTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
