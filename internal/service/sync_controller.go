package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/normalize"
	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"

	"github.com/sirupsen/logrus"
)

// SyncController drives the live half of the sync engine: it consumes
// Primary's event feed when available, falls back to interval polling when
// it is not, and folds Secondary change-feed events in either mode.
type SyncController struct {
	primary       PrimaryStore
	conversations *ConversationService
	threads       *ThreadService
	notifications *NotificationService
	changes       <-chan secondary.ChangeEvent
	logger        *logrus.Logger

	userID       string
	pollInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSyncController wires the live-update consumer. The changes channel may
// be nil when no Secondary watcher is running.
func NewSyncController(
	p PrimaryStore,
	conversations *ConversationService,
	threads *ThreadService,
	notifications *NotificationService,
	changes <-chan secondary.ChangeEvent,
	userID string,
	pollInterval time.Duration,
	logger *logrus.Logger,
) *SyncController {
	return &SyncController{
		primary:       p,
		conversations: conversations,
		threads:       threads,
		notifications: notifications,
		changes:       changes,
		logger:        logger,
		userID:        userID,
		pollInterval:  pollInterval,
	}
}

// Start begins consuming live updates. Subscription failure is not fatal:
// the controller degrades to interval polling and keeps the local state
// converging.
func (c *SyncController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("sync controller is already running")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	events, unsub, err := c.primary.Subscribe(c.ctx, c.userID)
	if err != nil {
		errors.LogWarn(c.logger, err, "Primary event feed unavailable, polling instead")
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.pollLoop()
		}()
	} else {
		c.logger.Info("Primary event feed connected")
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer unsub()
			c.eventLoop(events)
		}()
	}

	if c.changes != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.changeLoop()
		}()
	}

	return nil
}

// Stop cancels the live feeds and waits for the consumer goroutines.
// In-flight sends are unaffected; they carry their own contexts.
func (c *SyncController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.cancel()
	c.wg.Wait()
	c.running = false
	c.logger.Info("Sync controller stopped")
}

// IsRunning returns whether the controller is currently active.
func (c *SyncController) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *SyncController) eventLoop(events <-chan primary.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if c.ctx.Err() != nil {
					return
				}
				c.logger.Warn("Primary event feed closed, polling instead")
				c.pollLoop()
				return
			}
			c.handlePrimaryEvent(ev)
		}
	}
}

func (c *SyncController) handlePrimaryEvent(ev primary.Event) {
	switch ev.Type {
	case primary.EventMessageCreated, primary.EventMessageUpdated:
		if ev.Message == nil {
			return
		}
		c.handleMessage(normalize.MessageFromPrimary(*ev.Message), ev.Type == primary.EventMessageUpdated)
	case primary.EventNotificationCreated, primary.EventNotificationUpdated:
		if ev.Notification == nil {
			return
		}
		c.notifications.HandleNotificationEvent(ev.Type, *ev.Notification)
	default:
		c.logger.WithField("type", ev.Type).Debug("Ignoring unknown event type")
	}
}

func (c *SyncController) changeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.changes:
			if !ok {
				return
			}
			msg := normalize.MessageFromSecondary(ev.Row)
			if ev.Op == secondary.ChangeUpdate && ev.KnownPrev {
				c.handleReadChange(msg, ev.WasRead)
				continue
			}
			c.handleMessage(msg, ev.Op == secondary.ChangeUpdate)
		}
	}
}

// handleMessage folds one message, from either backend, into the thread,
// conversation and counter state. A message already present (matched by
// correlation id or backend id) adjusts read state only, so the same record
// arriving on both feeds is counted once.
func (c *SyncController) handleMessage(msg models.Message, isUpdate bool) {
	counterpart := counterpartOf(msg, c.userID)
	inbound := msg.RecipientID == c.userID

	prevRead, known := c.threads.ReadState(counterpart, msg)
	appended := c.threads.MergeIncoming(counterpart, msg)

	unreadDelta := 0
	if inbound {
		switch {
		case appended && !known && !msg.IsRead:
			unreadDelta = 1
			c.notifications.HandleMessageInsert(msg, c.userID)
		case known && prevRead != msg.IsRead:
			c.notifications.HandleMessageReadChange(prevRead, msg.IsRead)
			if msg.IsRead {
				unreadDelta = -1
			} else {
				unreadDelta = 1
			}
		}
	}

	if appended || isUpdate || unreadDelta != 0 {
		c.conversations.NoteMessage(counterpart, previewOf(msg), msg.OrderKey(), unreadDelta)
	}
}

func (c *SyncController) handleReadChange(msg models.Message, wasRead bool) {
	counterpart := counterpartOf(msg, c.userID)
	c.threads.MergeIncoming(counterpart, msg)

	if msg.RecipientID != c.userID || wasRead == msg.IsRead {
		return
	}
	c.notifications.HandleMessageReadChange(wasRead, msg.IsRead)
	delta := 1
	if msg.IsRead {
		delta = -1
	}
	c.conversations.NoteMessage(counterpart, previewOf(msg), msg.OrderKey(), delta)
}

func (c *SyncController) pollLoop() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *SyncController) pollOnce() {
	ctx, cancel := context.WithTimeout(c.ctx, c.pollInterval*5)
	defer cancel()

	if _, err := c.conversations.LoadConversations(ctx, c.userID); err != nil {
		errors.LogWarn(c.logger, err, "Conversation poll failed")
	}
	for _, counterpart := range c.threads.Counterparts() {
		if _, err := c.threads.LoadThread(ctx, c.userID, counterpart); err != nil {
			errors.LogWarn(c.logger, err, "Thread poll failed")
		}
	}
	c.notifications.Refresh(ctx, c.userID)
}

func counterpartOf(msg models.Message, selfID string) string {
	if msg.SenderID == selfID {
		return msg.RecipientID
	}
	return msg.SenderID
}

func previewOf(msg models.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if msg.Attachment != nil {
		return msg.Attachment.Name
	}
	return ""
}
