package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	w := New("/work/proj", ".deploy", 0)

	tests := []struct {
		name     string
		path     string
		op       fsnotify.Op
		expected bool
	}{
		{name: "descriptor written", path: "/work/proj/.deploy", op: fsnotify.Write, expected: true},
		{name: "branch head moved", path: "/work/proj/.git/refs/heads/main", op: fsnotify.Create, expected: true},
		{name: "nested branch", path: "/work/proj/.git/refs/heads/feature/x", op: fsnotify.Rename, expected: true},
		{name: "HEAD switched", path: "/work/proj/.git/HEAD", op: fsnotify.Write, expected: true},
		{name: "reflog", path: "/work/proj/.git/logs/HEAD", op: fsnotify.Write, expected: true},
		{name: "lock file", path: "/work/proj/.git/refs/heads/main.lock", op: fsnotify.Create, expected: false},
		{name: "index", path: "/work/proj/.git/index", op: fsnotify.Write, expected: false},
		{name: "source file", path: "/work/proj/main.go", op: fsnotify.Write, expected: false},
		{name: "remote ref", path: "/work/proj/.git/refs/remotes/deploy/main", op: fsnotify.Create, expected: false},
		{name: "chmod only", path: "/work/proj/.deploy", op: fsnotify.Chmod, expected: false},
		{name: "removal", path: "/work/proj/.deploy", op: fsnotify.Remove, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := w.relevant(fsnotify.Event{Name: tt.path, Op: tt.op})
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func newFakeWorkTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{".git/refs/heads", ".git/logs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return root
}

func TestRunRequiresWorkTree(t *testing.T) {
	w := New(t.TempDir(), ".deploy", time.Millisecond)
	if err := w.Run(context.Background(), func(context.Context, string) {}); err == nil {
		t.Error("expected error for a directory without .git")
	}
}

func TestRunDebouncesChanges(t *testing.T) {
	root := newFakeWorkTree(t)
	w := New(root, ".deploy", 50*time.Millisecond)

	var (
		mu      sync.Mutex
		reasons []string
	)
	triggered := make(chan struct{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, reason string) {
			mu.Lock()
			reasons = append(reasons, reason)
			mu.Unlock()
			triggered <- struct{}{}
		})
	}()

	// Give the watcher time to register its paths.
	time.Sleep(100 * time.Millisecond)

	head := filepath.Join(root, ".git", "refs", "heads", "main")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(head, []byte("abc123\n"), 0o644); err != nil {
			t.Fatalf("failed to write ref: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a trigger after the branch head moved")
	}

	// No second trigger for the same burst.
	select {
	case <-triggered:
		t.Error("expected the burst to be coalesced into one trigger")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != ".git/refs/heads/main" {
		t.Errorf("expected one trigger for .git/refs/heads/main, got %v", reasons)
	}
}

func TestRunWatchesDescriptor(t *testing.T) {
	root := newFakeWorkTree(t)
	w := New(root, ".deploy", 10*time.Millisecond)

	reasons := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Run(ctx, func(_ context.Context, reason string) { reasons <- reason })
	}()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(root, ".deploy"), []byte("server: {}\n"), 0o644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}

	select {
	case reason := <-reasons:
		if reason != ".deploy" {
			t.Errorf("expected .deploy, got %s", reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected a trigger after the descriptor changed")
	}
}
