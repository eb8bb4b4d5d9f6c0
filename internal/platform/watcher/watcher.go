// Package watcher はディレクトリ監視による自動インジェストを提供する
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

const (
	// settleDelay は書き込み完了を待つ猶予時間
	// エディタやコピーは1ファイルに複数のWriteイベントを発生させる
	settleDelay = 500 * time.Millisecond
)

// Watcher は監視ディレクトリに置かれたファイルを自動でインジェストする
type Watcher struct {
	ingester *ingestion.Service
	logger   *slog.Logger
}

// New は新しいWatcherを作成する
func New(ingester *ingestion.Service, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{ingester: ingester, logger: logger}
}

// Run はディレクトリを監視し、対応形式のファイルが作成・更新されるたびに
// インジェストする。ctxのキャンセルで停止する
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(dir); err != nil {
		return err
	}

	w.logger.Info("watching directory for documents", "dir", dir)

	debounce := newDebouncer(settleDelay, func(path string) {
		w.ingestFile(ctx, path)
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, err := document.ParseFormat(event.Name); err != nil {
				continue
			}
			debounce.Trigger(event.Name)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// debouncer は同一パスへの連続イベントをまとめ、一定時間静止したら発火する
type debouncer struct {
	delay time.Duration
	fire  func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newDebouncer(delay time.Duration, fire func(string)) *debouncer {
	return &debouncer{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger はパスのタイマーを開始し、既にあれば延長する
func (d *debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.pending[path]; exists {
		timer.Reset(d.delay)
		return
	}
	d.pending[path] = time.AfterFunc(d.delay, func() {
		// 発火済みエントリを残すとパス数に比例してマップが肥大する
		d.mu.Lock()
		delete(d.pending, path)
		d.mu.Unlock()
		d.fire(path)
	})
}

// pendingCount は未発火のタイマー数を返す
func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// ingestFile は1ファイルを読み込んでインジェストする
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read watched file", "path", path, "error", err)
		return
	}

	result, err := w.ingester.Ingest(ctx, filepath.Base(path), data)
	if err != nil {
		w.logger.Warn("failed to ingest watched file", "path", path, "error", err)
		return
	}

	w.logger.Info("watched file ingested",
		"path", path,
		"docID", result.DocID,
		"chunks", result.ChunksCreated,
	)
}
