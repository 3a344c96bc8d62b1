package service

import (
	"context"
	"sync"

	"chatsync/internal/bus"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/pkg/primary"

	"github.com/sirupsen/logrus"
)

// NotificationService combines unread-message, pending-friend-request and
// generic-notification counts from both backends into one badge value.
// Each counter is sourced and reset independently.
type NotificationService struct {
	primary   PrimaryStore
	secondary SecondaryStore
	bus       *bus.Bus
	logger    *logrus.Logger

	mu       sync.Mutex
	counters models.NotificationCounters
}

// NewNotificationService creates the badge aggregator.
func NewNotificationService(p PrimaryStore, s SecondaryStore, b *bus.Bus, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		primary:   p,
		secondary: s,
		bus:       b,
		logger:    logger,
	}
}

// Refresh performs the full fetch of all three counters. Unread messages
// come from Primary's conversation summaries, falling back to Secondary's
// unread row count; the other two categories are Primary-sourced. A failed
// category keeps its previous value.
func (s *NotificationService) Refresh(ctx context.Context, userID string) {
	unread, unreadOk := s.fetchUnread(ctx, userID)

	friendRequests, frErr := s.primary.CountPendingFriendRequests(ctx, userID)
	if frErr != nil {
		errors.LogWarn(s.logger, frErr, "Friend request count fetch failed")
	}
	generic, genErr := s.primary.CountUnreadNotifications(ctx, userID)
	if genErr != nil {
		errors.LogWarn(s.logger, genErr, "Notification count fetch failed")
	}

	s.mu.Lock()
	if unreadOk {
		s.counters.UnreadMessages = unread
	}
	if frErr == nil {
		s.counters.PendingFriendRequests = friendRequests
	}
	if genErr == nil {
		s.counters.GenericNotifications = generic
	}
	s.mu.Unlock()

	s.publish()
}

func (s *NotificationService) fetchUnread(ctx context.Context, userID string) (int, bool) {
	convs, err := s.primary.GetConversations(ctx, userID)
	if err == nil && len(convs) > 0 {
		total := 0
		for _, c := range convs {
			total += c.UnreadCount
		}
		return total, true
	}
	if err != nil {
		errors.LogWarn(s.logger, err, "Primary unread fetch failed, using secondary count")
	}

	count, err := s.secondary.CountUnreadMessages(ctx, userID)
	if err != nil {
		errors.LogWarn(s.logger, err, "Secondary unread fetch failed")
		return 0, false
	}
	return count, true
}

// HandleMessageInsert bumps the unread counter for an inbound unread
// message.
func (s *NotificationService) HandleMessageInsert(msg models.Message, selfID string) {
	if msg.RecipientID != selfID || msg.IsRead {
		return
	}
	s.mu.Lock()
	s.counters.UnreadMessages++
	s.mu.Unlock()
	s.publish()
}

// HandleMessageReadChange reacts to a read-flag update. An event where the
// old and new values are identical is a duplicate and must not move the
// counter.
func (s *NotificationService) HandleMessageReadChange(wasRead, isRead bool) {
	if wasRead == isRead {
		return
	}
	s.mu.Lock()
	if isRead {
		if s.counters.UnreadMessages > 0 {
			s.counters.UnreadMessages--
		}
	} else {
		s.counters.UnreadMessages++
	}
	s.mu.Unlock()
	s.publish()
}

// HandleThreadRead absorbs a locally-initiated thread read: the given
// number of messages just flipped to read, so the counter drops by that
// much. The backends echo the same flips later, but those echoes carry no
// state change against the already-flipped thread and stay no-ops.
func (s *NotificationService) HandleThreadRead(flipped int) {
	if flipped <= 0 {
		return
	}
	s.mu.Lock()
	s.counters.UnreadMessages = clampNonNegative(s.counters.UnreadMessages - flipped)
	s.mu.Unlock()
	s.publish()
}

// HandleNotificationEvent folds one live friend-request/generic event into
// the matching counter.
func (s *NotificationService) HandleNotificationEvent(eventType string, ev primary.NotificationEvent) {
	delta := 0
	switch eventType {
	case primary.EventNotificationCreated:
		if !ev.Read {
			delta = 1
		}
	case primary.EventNotificationUpdated:
		if ev.Read == ev.WasRead {
			return // duplicate delivery of an already-processed change
		}
		if ev.Read {
			delta = -1
		} else {
			delta = 1
		}
	default:
		return
	}

	s.mu.Lock()
	switch ev.Category {
	case primary.NotificationFriendRequest:
		s.counters.PendingFriendRequests = clampNonNegative(s.counters.PendingFriendRequests + delta)
	case primary.NotificationGeneric:
		s.counters.GenericNotifications = clampNonNegative(s.counters.GenericNotifications + delta)
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.publish()
}

// MarkAllRead resets exactly one category, leaving the other two untouched.
// The backend acknowledgment is best-effort; the local counter resets
// regardless so the badge reflects the user's action immediately.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string, category models.NotificationCategory) {
	switch category {
	case models.CategoryFriendRequests:
		if err := s.primary.MarkNotificationsRead(ctx, userID, primary.NotificationFriendRequest); err != nil {
			errors.LogWarn(s.logger, err, "Friend request mark-all-read failed")
		}
	case models.CategoryGeneric:
		if err := s.primary.MarkNotificationsRead(ctx, userID, primary.NotificationGeneric); err != nil {
			errors.LogWarn(s.logger, err, "Notification mark-all-read failed")
		}
	case models.CategoryMessages:
		// Per-conversation read acknowledgments drive the backends for
		// messages; only the aggregate resets here.
	default:
		return
	}

	s.mu.Lock()
	switch category {
	case models.CategoryMessages:
		s.counters.UnreadMessages = 0
	case models.CategoryFriendRequests:
		s.counters.PendingFriendRequests = 0
	case models.CategoryGeneric:
		s.counters.GenericNotifications = 0
	}
	s.mu.Unlock()
	s.publish()
}

// Counters returns a snapshot of the three counters.
func (s *NotificationService) Counters() models.NotificationCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Badge returns the displayed badge value.
func (s *NotificationService) Badge() int {
	return s.Counters().Badge()
}

func (s *NotificationService) publish() {
	s.bus.Publish(bus.Event{Kind: bus.KindCountersUpdated, Payload: s.Counters()})
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
