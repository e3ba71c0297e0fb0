package gamelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestTailerStartsAtEndOfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	writeLine(t, path, "LogBag: Display: AddItem itemId=111 num=5 page=0 slot=0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tailer.Run(ctx)
	}()

	// Give the tailer a moment to record the starting offset.
	time.Sleep(100 * time.Millisecond)
	writeLine(t, path, "LogBag: Display: AddItem itemId=222 num=1 page=0 slot=1")

	ev := waitEvent(t, tailer.Events())
	drop, ok := ev.(ItemDrop)
	if !ok {
		t.Fatalf("got %T, want ItemDrop", ev)
	}
	if drop.GameID != 222 {
		t.Errorf("GameID = %d, want 222 (pre-existing line 111 must not replay)", drop.GameID)
	}

	cancel()
	<-done
}

func TestTailerSurvivesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	// The preamble must stay longer than everything written after the
	// truncation, so the shrink is visible no matter when the next read
	// runs.
	for i := 0; i < 4; i++ {
		writeLine(t, path, "LogTemp: Display: preamble that pads the offset out")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path)
	go tailer.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	// Game restart: the log is recreated from scratch, shorter than before.
	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	writeLine(t, path, "LogBag: Display: AddItem itemId=333 num=2 page=0 slot=0")

	ev := waitEvent(t, tailer.Events())
	drop, ok := ev.(ItemDrop)
	if !ok {
		t.Fatalf("got %T, want ItemDrop", ev)
	}
	if drop.GameID != 333 {
		t.Errorf("GameID = %d, want 333", drop.GameID)
	}
}

func TestTailerPicksUpLateCreatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path)
	go tailer.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	writeLine(t, path, "LogBag: Display: AddItem itemId=444 num=1 page=0 slot=0")

	ev := waitEvent(t, tailer.Events())
	if drop := ev.(ItemDrop); drop.GameID != 444 {
		t.Errorf("GameID = %d, want 444", drop.GameID)
	}
}

func TestDrainHoldsIncompleteLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	if err := os.WriteFile(path, []byte("LogBag: Display: AddItem itemId=555 num=1"), 0o644); err != nil {
		t.Fatal(err)
	}

	tailer := NewTailer(path)
	tailer.drain(context.Background())

	select {
	case ev := <-tailer.events:
		t.Fatalf("drain emitted %v from an incomplete line", ev)
	default:
	}
	if tailer.offset != 0 {
		t.Errorf("offset advanced to %d past an incomplete line, want 0", tailer.offset)
	}

	// Completing the line makes it parseable on the next pass.
	writeLine(t, path, " page=2 slot=3")
	tailer.drain(context.Background())

	select {
	case ev := <-tailer.events:
		drop, ok := ev.(ItemDrop)
		if !ok {
			t.Fatalf("got %T, want ItemDrop", ev)
		}
		if drop.GameID != 555 || drop.PageID != 2 || drop.SlotID != 3 {
			t.Errorf("drop = %+v, want itemId=555 page=2 slot=3", drop)
		}
	default:
		t.Fatal("drain emitted nothing after line completion")
	}
}

func TestDrainSkipsUnknownLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	writeLine(t, path, "LogTemp: Warning: noise")
	writeLine(t, path, "LogBag: Display: AddItem itemId=666 num=1 page=0 slot=0")
	writeLine(t, path, "more noise")

	tailer := NewTailer(path)
	tailer.drain(context.Background())

	ev := waitEvent(t, tailer.events)
	if drop := ev.(ItemDrop); drop.GameID != 666 {
		t.Errorf("GameID = %d, want 666", drop.GameID)
	}
	select {
	case ev := <-tailer.events:
		t.Fatalf("unexpected second event %v", ev)
	default:
	}
}
