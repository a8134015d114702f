// Package notify turns filesystem events on the watched folder into early
// poll ticks. Events are only hints: the scanner still decides what is new
// and stable, so a missed or spurious event never changes what is uploaded.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ning0612/Hotfolder/internal/logger"
)

// Watch calls wake once dir has been quiet for delay after a create, write
// or rename of a visible entry. A burst of events yields a single wake.
// It returns once the OS watch is installed; events stop when ctx is done.
func Watch(ctx context.Context, dir string, delay time.Duration, wake func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger.Get().Debug("filesystem hints enabled", "dir", dir, "delay", delay)

	go run(ctx, fw, delay, wake)
	return nil
}

func run(ctx context.Context, fw *fsnotify.Watcher, delay time.Duration, wake func()) {
	defer fw.Close()

	timer := time.NewTimer(delay)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			// restart the quiet period on every event
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(delay)
			armed = true

		case <-timer.C:
			armed = false
			wake()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Get().Warn("filesystem watch error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}
