package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/normalize"
	"chatsync/pkg/primary"

	"github.com/sirupsen/logrus"
)

// ThreadController keeps a single open conversation fresh. It is acquired
// when the thread is opened and released when it is closed; the live feed
// or polling ticker it owns never outlives it.
type ThreadController struct {
	primary       PrimaryStore
	threads       *ThreadService
	logger        *logrus.Logger
	userID        string
	counterpartID string
	pollInterval  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewThreadController(
	p PrimaryStore,
	threads *ThreadService,
	userID, counterpartID string,
	pollInterval time.Duration,
	logger *logrus.Logger,
) *ThreadController {
	return &ThreadController{
		primary:       p,
		threads:       threads,
		logger:        logger,
		userID:        userID,
		counterpartID: counterpartID,
		pollInterval:  pollInterval,
	}
}

// Start subscribes to the live feed for this thread, or degrades to an
// interval re-load when the subscription cannot be established.
func (t *ThreadController) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("thread controller for %s is already running", t.counterpartID)
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true

	events, unsub, err := t.primary.Subscribe(t.ctx, t.userID)
	if err != nil {
		errors.LogWarn(t.logger, err, "Thread feed unavailable, polling instead")
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.pollLoop()
		}()
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer unsub()
		t.eventLoop(events)
	}()
	return nil
}

// Stop releases the feed or ticker and waits for the consumer goroutine.
// In-flight sends carry their own contexts and are not cancelled.
func (t *ThreadController) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}

	t.cancel()
	t.wg.Wait()
	t.running = false
}

// IsRunning returns whether the controller is currently active.
func (t *ThreadController) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *ThreadController) eventLoop(events <-chan primary.Event) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if t.ctx.Err() != nil {
					return
				}
				t.logger.Warn("Thread feed closed, polling instead")
				t.pollLoop()
				return
			}
			t.handleEvent(ev)
		}
	}
}

func (t *ThreadController) handleEvent(ev primary.Event) {
	if ev.Type != primary.EventMessageCreated && ev.Type != primary.EventMessageUpdated {
		return
	}
	if ev.Message == nil {
		return
	}
	msg := normalize.MessageFromPrimary(*ev.Message)
	if counterpartOf(msg, t.userID) != t.counterpartID {
		return
	}
	t.threads.MergeIncoming(t.counterpartID, msg)
}

func (t *ThreadController) pollLoop() {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(t.ctx, t.pollInterval*5)
			if _, err := t.threads.LoadThread(ctx, t.userID, t.counterpartID); err != nil {
				errors.LogWarn(t.logger, err, "Thread poll failed")
			}
			cancel()
		}
	}
}

// ThreadControllerSet tracks one controller per open conversation.
type ThreadControllerSet struct {
	primary      PrimaryStore
	threads      *ThreadService
	logger       *logrus.Logger
	userID       string
	pollInterval time.Duration

	mu          sync.Mutex
	controllers map[string]*ThreadController
}

func NewThreadControllerSet(
	p PrimaryStore,
	threads *ThreadService,
	userID string,
	pollInterval time.Duration,
	logger *logrus.Logger,
) *ThreadControllerSet {
	return &ThreadControllerSet{
		primary:      p,
		threads:      threads,
		logger:       logger,
		userID:       userID,
		pollInterval: pollInterval,
		controllers:  make(map[string]*ThreadController),
	}
}

// Open starts a controller for the conversation if one is not already
// running. Opening an already-open thread is a no-op.
func (s *ThreadControllerSet) Open(ctx context.Context, counterpartID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.controllers[counterpartID]; ok {
		return
	}
	ctrl := NewThreadController(s.primary, s.threads, s.userID, counterpartID, s.pollInterval, s.logger)
	if err := ctrl.Start(ctx); err != nil {
		errors.LogWarn(s.logger, err, "Thread controller start failed")
		return
	}
	s.controllers[counterpartID] = ctrl
}

// Close stops and discards the conversation's controller, if any.
func (s *ThreadControllerSet) Close(counterpartID string) {
	s.mu.Lock()
	ctrl, ok := s.controllers[counterpartID]
	delete(s.controllers, counterpartID)
	s.mu.Unlock()

	if ok {
		ctrl.Stop()
	}
}

// CloseAll stops every open controller. Called on shutdown.
func (s *ThreadControllerSet) CloseAll() {
	s.mu.Lock()
	controllers := make([]*ThreadController, 0, len(s.controllers))
	for _, ctrl := range s.controllers {
		controllers = append(controllers, ctrl)
	}
	s.controllers = make(map[string]*ThreadController)
	s.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Stop()
	}
}

// OpenCount returns the number of open threads.
func (s *ThreadControllerSet) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}
