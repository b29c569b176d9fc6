package watcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/config"
	"github.com/hyperjump/lore/internal/transfer"
	"github.com/hyperjump/lore/pkg/models"
)

// Importer stores decoded lessons. *lore.Engine satisfies it.
type Importer interface {
	Import(ctx context.Context, lessons []models.Lesson) (int, error)
}

// InboxStats counts inbox activity since start.
type InboxStats struct {
	Files     int `json:"files"`
	Lessons   int `json:"lessons"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Inbox imports lesson export files (.json, .xlsx) dropped into watched
// directories. A file whose content has not changed since it was last
// imported is skipped.
type Inbox struct {
	importer Importer
	watcher  *Watcher
	logger   *zap.Logger
	roots    []string

	mu    sync.Mutex
	seen  map[string]uint64
	stats InboxStats
}

// NewInbox builds an inbox over the directories in cfg.
func NewInbox(importer Importer, cfg config.WatchConfig, logger *zap.Logger, opts ...Option) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Inbox{
		importer: importer,
		logger:   logger,
		roots:    cfg.Directories,
		seen:     make(map[string]uint64),
	}
	opts = append([]Option{WithLogger(logger), WithRecursive(cfg.RecursiveOrDefault())}, opts...)
	in.watcher = New(cfg.Extensions, in.handle, opts...)
	return in
}

// Start watches the configured directories and imports files already in them.
func (in *Inbox) Start(ctx context.Context) error {
	if err := in.watcher.Start(ctx, in.roots...); err != nil {
		return fmt.Errorf("start inbox watcher: %w", err)
	}
	in.logger.Info("Watching import inbox", zap.Strings("directories", in.watcher.Directories()))
	go in.watcher.SyncAll()
	return nil
}

// Stop stops watching.
func (in *Inbox) Stop() {
	in.watcher.Stop()
}

// AddDirectory watches another directory and imports its files.
func (in *Inbox) AddDirectory(dir string) error {
	return in.watcher.AddDirectory(dir, true)
}

// RemoveDirectory stops watching dir.
func (in *Inbox) RemoveDirectory(dir string) error {
	return in.watcher.RemoveDirectory(dir)
}

// Directories returns the watched directories.
func (in *Inbox) Directories() []string {
	return in.watcher.Directories()
}

// Stats returns a snapshot of the counters.
func (in *Inbox) Stats() InboxStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

func (in *Inbox) handle(ctx context.Context, path string) {
	n, err := in.ImportFile(ctx, path)
	if err != nil {
		in.logger.Warn("Import failed", zap.String("path", path), zap.Error(err))
		return
	}
	if n > 0 {
		in.logger.Info("Imported lessons", zap.String("path", path), zap.Int("count", n))
	}
}

// ImportFile decodes path and imports its lessons, returning how many were
// stored.
func (in *Inbox) ImportFile(ctx context.Context, path string) (int, error) {
	format, err := transfer.FormatFromPath(path)
	if err != nil {
		return 0, in.fail(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, in.fail(fmt.Errorf("read %s: %w", path, err))
	}
	sum := xxhash.Sum64(data)

	in.mu.Lock()
	if prev, ok := in.seen[path]; ok && prev == sum {
		in.stats.Unchanged++
		in.mu.Unlock()
		return 0, nil
	}
	in.mu.Unlock()

	lessons, err := transfer.Decode(bytes.NewReader(data), format)
	if err != nil {
		return 0, in.fail(err)
	}
	n, err := in.importer.Import(ctx, lessons)
	if err != nil {
		return n, in.fail(err)
	}

	in.mu.Lock()
	in.seen[path] = sum
	in.stats.Files++
	in.stats.Lessons += n
	in.mu.Unlock()
	return n, nil
}

func (in *Inbox) fail(err error) error {
	in.mu.Lock()
	in.stats.Failed++
	in.mu.Unlock()
	return err
}
