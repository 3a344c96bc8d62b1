package secondary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/retry"

	"github.com/sirupsen/logrus"
)

// ChangeOp tags a change-feed event.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
)

// ChangeEvent is one row-level change observed on chat_messages. For
// updates, WasRead carries the previously observed read flag when the
// watcher has seen the row before (KnownPrev true), so consumers can drop
// no-op updates.
type ChangeEvent struct {
	Op        ChangeOp
	Row       MessageRow
	WasRead   bool
	KnownPrev bool
}

// Watcher polls chat_messages for rows with a newer updated_at and emits
// synthesized change events. It is the Secondary store's stand-in for a
// server-push change channel.
type Watcher struct {
	client   *Client
	interval time.Duration
	backoff  *retry.Backoff
	logger   *logrus.Logger

	events chan ChangeEvent

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	lastSeen time.Time
	seenRead map[int64]bool
}

// NewWatcher creates a change watcher over the given client.
func NewWatcher(client *Client, interval time.Duration, backoffCfg retry.BackoffConfig, logger *logrus.Logger) *Watcher {
	return &Watcher{
		client:   client,
		interval: interval,
		backoff:  retry.NewBackoff(backoffCfg),
		logger:   logger,
		events:   make(chan ChangeEvent, 256),
		lastSeen: time.Now().UTC(),
		seenRead: make(map[int64]bool),
	}
}

// Events returns the change-event channel.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Start begins the background polling process.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("secondary watcher is already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.pollLoop()

	w.logger.WithField("interval", w.interval).Info("Secondary change watcher started")
	return nil
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.running = false
	w.logger.Info("Secondary change watcher stopped")
}

// IsRunning returns whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.backoff.Retry(w.ctx, w.pollOnce); err != nil {
				if w.ctx.Err() != nil {
					return
				}
				w.logger.WithError(err).Warn("Secondary change poll failed after retries")
			}
		}
	}
}

func (w *Watcher) pollOnce() error {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	rows, err := w.client.changedSince(ctx, w.lastSeen)
	if err != nil {
		return err
	}

	for _, row := range rows {
		evt := ChangeEvent{Row: row}
		prev, seen := w.seenRead[row.ID]
		if seen {
			evt.Op = ChangeUpdate
			evt.WasRead = prev
			evt.KnownPrev = true
		} else {
			evt.Op = ChangeInsert
		}
		w.seenRead[row.ID] = row.IsRead
		if row.UpdatedAt.After(w.lastSeen) {
			w.lastSeen = row.UpdatedAt
		}

		select {
		case w.events <- evt:
		case <-w.ctx.Done():
			return nil
		}
	}
	return nil
}
