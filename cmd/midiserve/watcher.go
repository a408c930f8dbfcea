package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Garik-/miditime/pkg/midi"
)

// settleDelay coalesces event bursts: editors and exporters usually
// write a file several times in quick succession.
const settleDelay = 100 * time.Millisecond

// delay is a timeout that can be retriggered while armed.
type delay struct {
	timer   *time.Timer
	channel <-chan time.Time
	due     time.Time
}

func (d *delay) trigger(dt time.Duration) {
	if d.channel != nil {
		d.due = time.Now().Add(dt)
		return
	}
	if d.timer == nil {
		d.timer = time.NewTimer(dt)
	} else {
		d.timer.Reset(dt)
	}
	d.channel = d.timer.C
	d.due = time.Time{}
}

// remaining reports how long before the last trigger is actually due.
// A wakeup that lands earlier must rearm instead of firing.
func (d *delay) remaining() time.Duration {
	if d.due.IsZero() {
		return 0
	}
	return time.Until(d.due)
}

// watcher keeps the library in sync with one midi file on disk.
type watcher struct {
	path    string
	decoder *midi.Decoder
	lib     *library
	log     *zap.Logger
	delay   delay
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory: editors replace files by rename, which
	// silently drops a watch set on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.reload(ctx)

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watch channel closed")
			}
			if filepath.Clean(ev.Name) == w.path {
				w.delay.trigger(settleDelay)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watch channel closed")
			}
			return err
		case <-w.delay.channel:
			w.delay.channel = nil
			if rem := w.delay.remaining(); rem > 0 {
				w.delay.trigger(rem)
				break
			}
			w.reload(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *watcher) reload(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Error("read", zap.Error(err))
		w.lib.set(nil, err)
		return
	}
	f, err := w.decoder.DecodeContext(ctx, data)
	if err != nil {
		w.log.Error("decode", zap.Error(err))
		w.lib.set(nil, err)
		return
	}
	w.log.Info("decoded",
		zap.String("path", w.path),
		zap.Int("tracks", len(f.Tracks)),
		zap.Int("notes", len(f.Notes)),
		zap.Float64("duration", f.Duration()))
	w.lib.set(f, nil)
}
