package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Ning0612/Hotfolder/internal/logger"
	"github.com/Ning0612/Hotfolder/internal/watcher"
)

// console shows one status line for the watcher and turns Enter into a
// Resume while access is blocked
type console struct {
	w   *watcher.Watcher
	out io.Writer
	tty bool

	mu   sync.Mutex
	last string
}

// startConsole runs until ctx is done or the returned func is called
func startConsole(ctx context.Context, w *watcher.Watcher, in io.Reader, out io.Writer, tty bool) func() {
	c := &console{w: w, out: out, tty: tty}
	events, unsubscribe := w.Bus().Subscribe()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.render(events, ctx.Done())
	}()
	go c.readKeys(ctx, in)

	return func() {
		cancel()
		unsubscribe()
		wg.Wait()
		if c.tty {
			fmt.Fprintln(c.out)
		}
	}
}

func (c *console) render(events <-chan watcher.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if line := statusLine(e); line != "" {
				c.show(line)
			}
		}
	}
}

// readKeys never returns while blocked on stdin; it exits with the process
func (c *console) readKeys(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		c.enter(ctx)
	}
}

// enter is the user gesture that may prompt for folder access
func (c *console) enter(ctx context.Context) {
	if c.w.State() != watcher.StatePermissionBlocked {
		return
	}
	if err := c.w.Resume(ctx); err != nil {
		logger.Get().Error("resume failed", "error", err)
		c.show("resume failed: " + err.Error())
	}
}

func (c *console) show(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line == c.last {
		return
	}
	c.last = line
	if c.tty {
		fmt.Fprintf(c.out, "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(c.out, line)
}

func statusLine(e watcher.Event) string {
	switch e.Kind {
	case watcher.EventStateChanged:
		switch e.State {
		case watcher.StatePolling:
			return "watching"
		case watcher.StatePermissionBlocked:
			return fmt.Sprintf("access needed: %s (press Enter to grant)", e.Reason)
		case watcher.StateIdle:
			return "stopped"
		}
	case watcher.EventFileDetected:
		return "ready: " + e.Filename
	case watcher.EventFileUploaded:
		if e.Result.Deleted {
			return fmt.Sprintf("uploaded and removed: %s", e.Filename)
		}
		return fmt.Sprintf("uploaded: %s", e.Filename)
	case watcher.EventUploadFailed:
		return fmt.Sprintf("upload failed: %s: %v", e.Filename, e.Result.Err)
	}
	return ""
}
