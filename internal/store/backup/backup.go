// Package backup copies the content store off-box on a schedule that is
// decoupled from request latency.
package backup

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshotter writes a consistent copy of the store to a file.
type Snapshotter interface {
	Snapshot(ctx context.Context, dst string) error
}

// Uploader ships a snapshot somewhere durable.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

// Scheduler coalesces write notifications into periodic backups: any number
// of writes between two ticks produce a single upload.
type Scheduler struct {
	src      Snapshotter
	up       Uploader
	interval time.Duration
	now      func() time.Time

	dirty atomic.Bool
	mu    sync.Mutex // serializes backups
}

func NewScheduler(src Snapshotter, up Uploader, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{src: src, up: up, interval: interval, now: time.Now}
}

// Notify marks the store as changed. It never blocks.
func (s *Scheduler) Notify() {
	s.dirty.Store(true)
}

// Pending reports whether changes are waiting for a backup.
func (s *Scheduler) Pending() bool {
	return s.dirty.Load()
}

// Run backs up pending changes every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.backupIfDirty(ctx); err != nil {
				log.Printf("backup: %v", err)
			}
		}
	}
}

// Flush synchronously backs up pending changes. Call it on shutdown.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.backupIfDirty(ctx)
}

func (s *Scheduler) backupIfDirty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty.Swap(false) {
		return nil
	}
	if err := s.backup(ctx); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

func (s *Scheduler) backup(ctx context.Context) error {
	tmp, err := os.MkdirTemp("", "roguellm-backup-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	snap := filepath.Join(tmp, "snapshot.db")
	if err := s.src.Snapshot(ctx, snap); err != nil {
		return err
	}
	f, err := os.Open(snap)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	name := "roguellm-" + s.now().UTC().Format("20060102T150405Z") + ".db"
	if err := s.up.Upload(ctx, name, f); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	log.Printf("backup: uploaded %s", name)
	return nil
}
