// Package watcher re-triggers deployments when the local repository moves.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDelay is how long the watcher waits for the repository to settle.
const DefaultDelay = 500 * time.Millisecond

// TriggerFunc runs one deployment. reason is the repository-relative path that changed.
type TriggerFunc func(ctx context.Context, reason string)

// Watcher observes the branch heads, HEAD and the descriptor of a work tree.
type Watcher struct {
	root       string
	descriptor string
	delay      time.Duration
}

// New creates a watcher for the work tree at root. descriptor is the
// descriptor file name relative to root.
func New(root, descriptor string, delay time.Duration) *Watcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Watcher{root: root, descriptor: descriptor, delay: delay}
}

// Run blocks until ctx is done. Changes are debounced and coalesced: at most
// one trigger runs at a time and changes seen while it runs cause one more.
func (w *Watcher) Run(ctx context.Context, trigger TriggerFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addPaths(fw); err != nil {
		return err
	}

	fire := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case reason := <-fire:
				trigger(ctx, reason)
			}
		}
	}()
	defer wg.Wait()

	log.Info().Str("root", w.root).Msg("watching repository for changes")

	var (
		debounce <-chan time.Time
		reason   string
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Create != 0 && w.underHeads(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch directory")
					}
				}
			}

			rel, ok := w.relevant(event)
			if !ok {
				continue
			}
			log.Debug().Str("file", rel).Str("op", event.Op.String()).Msg("repository changed")
			reason = rel
			debounce = time.After(w.delay)

		case <-debounce:
			debounce = nil
			select {
			case fire <- reason:
			default:
				// A run is already queued; it will pick up this change.
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) addPaths(fw *fsnotify.Watcher) error {
	gitDir := filepath.Join(w.root, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a git work tree", w.root)
	}

	for _, dir := range []string{w.root, gitDir, filepath.Join(gitDir, "logs")} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return w.addTree(fw, filepath.Join(gitDir, "refs", "heads"))
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) underHeads(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(filepath.ToSlash(rel), ".git/refs/heads/")
}

// relevant reports whether event should trigger a deployment and returns the
// repository-relative path.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return "", false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if strings.HasSuffix(rel, ".lock") {
		return "", false
	}

	switch {
	case rel == w.descriptor:
		return rel, true
	case rel == ".git/HEAD", rel == ".git/packed-refs", rel == ".git/logs/HEAD":
		return rel, true
	case strings.HasPrefix(rel, ".git/refs/heads/"):
		return rel, true
	}
	return "", false
}
