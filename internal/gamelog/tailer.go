package gamelog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the fallback read cadence for filesystems where change
// notification is unreliable (network shares, some Wine prefixes).
const pollInterval = 2 * time.Second

// Tailer follows the game log file and emits parsed events. Reading begins
// at the current end of file, never at the top: replaying pre-startup
// history would double-count drops into a restored session.
type Tailer struct {
	path   string
	events chan Event
	offset int64
}

func NewTailer(path string) *Tailer {
	return &Tailer{path: path, events: make(chan Event, 256)}
}

// Events is closed when Run returns.
func (t *Tailer) Events() <-chan Event { return t.events }

// Run tails the file until ctx is cancelled. The log may not exist yet
// (tracker started before the game); it is picked up on creation.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.events)

	if info, err := os.Stat(t.path); err == nil {
		t.offset = info.Size()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: the game recreates the log on
	// every launch and a directory watch survives the swap.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watching log directory: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != t.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				t.drain(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[gamelog] watch error: %v", err)
		case <-ticker.C:
			t.drain(ctx)
		}
	}
}

// drain reads every complete new line since the last offset and emits the
// events they parse into. Incomplete trailing lines are left for the next
// pass so a line is never split across reads.
func (t *Tailer) drain(ctx context.Context) {
	info, err := os.Stat(t.path)
	if err != nil {
		return
	}
	if info.Size() < t.offset {
		// File shrank: the game rotated or rewrote the log.
		t.offset = 0
	}
	if info.Size() == t.offset {
		return
	}

	f, err := os.Open(t.path)
	if err != nil {
		log.Printf("[gamelog] open %s: %v", t.path, err)
		return
	}
	defer f.Close()

	if t.offset > 0 {
		if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
			log.Printf("[gamelog] seek %s: %v", t.path, err)
			return
		}
	}

	now := time.Now()
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			log.Printf("[gamelog] read %s: %v", t.path, err)
			return
		}
		if len(line) == 0 {
			return
		}
		if line[len(line)-1] != '\n' {
			return
		}
		t.offset += int64(len(line))

		if ev, ok := ParseLine(strings.TrimRight(string(line), "\r\n"), now); ok {
			select {
			case t.events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err == io.EOF {
			return
		}
	}
}
