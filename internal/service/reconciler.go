package service

import (
	"context"
	"sort"
	"sync"

	"chatsync/internal/bus"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/normalize"

	"github.com/sirupsen/logrus"
)

// ThreadService merges message lists from both backends into one ordered,
// de-duplicated thread per conversation and resolves read-state conflicts.
type ThreadService struct {
	primary   PrimaryStore
	secondary SecondaryStore
	bus       *bus.Bus
	logger    *logrus.Logger

	mu      sync.RWMutex
	threads map[string][]models.Message
}

// NewThreadService creates a message reconciler.
func NewThreadService(p PrimaryStore, s SecondaryStore, b *bus.Bus, logger *logrus.Logger) *ThreadService {
	return &ThreadService{
		primary:   p,
		secondary: s,
		bus:       b,
		logger:    logger,
		threads:   make(map[string][]models.Message),
	}
}

// LoadThread refreshes the thread between userID and counterpartID. Primary
// history wins when non-empty; otherwise Secondary's joined fast path is
// tried, falling back to the raw filtered query without surfacing the fast
// path's error. Local unconfirmed entries survive every refresh.
func (s *ThreadService) LoadThread(ctx context.Context, userID, counterpartID string) ([]models.Message, error) {
	var fetched []models.Message

	primaryMsgs, primaryErr := s.primary.GetMessagesBetween(ctx, userID, counterpartID)
	if primaryErr == nil && len(primaryMsgs) > 0 {
		fetched = make([]models.Message, 0, len(primaryMsgs))
		for _, pm := range primaryMsgs {
			fetched = append(fetched, normalize.MessageFromPrimary(pm))
		}
	} else {
		if primaryErr != nil {
			errors.LogWarn(s.logger, primaryErr, "Primary thread query failed, falling back to secondary")
		}

		joined, joinedErr := s.secondary.GetThreadWithProfiles(ctx, userID, counterpartID)
		if joinedErr == nil {
			fetched = make([]models.Message, 0, len(joined))
			for _, tr := range joined {
				fetched = append(fetched, normalize.MessageFromSecondary(tr.MessageRow))
			}
		} else {
			// The joined fast path is optional; its failure must not
			// surface when the raw query succeeds.
			s.logger.WithError(joinedErr).Debug("Joined thread query unavailable, using filtered query")

			rows, rawErr := s.secondary.GetMessagesBetween(ctx, userID, counterpartID)
			if rawErr != nil {
				if primaryErr != nil {
					return nil, errors.Wrap(rawErr, errors.ErrCodeSourceUnavailable, "both thread sources failed")
				}
				return nil, rawErr
			}
			fetched = make([]models.Message, 0, len(rows))
			for _, row := range rows {
				fetched = append(fetched, normalize.MessageFromSecondary(row))
			}
		}
	}

	s.mu.Lock()
	thread := s.reconcileFetched(counterpartID, fetched)
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.ThreadKind(counterpartID)})
	return thread, nil
}

// reconcileFetched replaces the stored thread with the fetched history while
// carrying over local entries the backends do not know yet (Pending or
// Failed sends). Caller holds the lock.
func (s *ThreadService) reconcileFetched(counterpartID string, fetched []models.Message) []models.Message {
	existing := s.threads[counterpartID]

	known := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		if m.CorrelationID != "" {
			known[m.CorrelationID] = true
		}
	}

	merged := fetched
	for _, m := range existing {
		if m.DeliveryState.Confirmed() {
			continue
		}
		if m.CorrelationID != "" && known[m.CorrelationID] {
			continue
		}
		merged = append(merged, m)
	}

	sortThread(merged)
	s.threads[counterpartID] = merged
	return snapshotThread(merged)
}

// MergeIncoming folds one message into a thread. A message whose correlation
// id matches an unconfirmed placeholder replaces that placeholder in place;
// a duplicate of an already-confirmed record merges state instead of
// appending a second copy. The return reports whether the message landed as
// a genuinely new entry.
func (s *ThreadService) MergeIncoming(counterpartID string, msg models.Message) bool {
	s.mu.Lock()
	thread := s.threads[counterpartID]
	replaced := false

	if msg.CorrelationID != "" {
		for i, existing := range thread {
			if existing.CorrelationID != msg.CorrelationID {
				continue
			}
			replaced = true
			if existing.DeliveryState.Confirmed() && msg.DeliveryState.Confirmed() {
				// Same record seen from both backends. Primary's payload
				// wins a content disagreement; the discrepancy is logged,
				// not surfaced.
				merged := existing
				if msg.Content != existing.Content {
					s.logger.WithFields(logrus.Fields{
						"correlationId": msg.CorrelationID,
					}).Warn("Backends disagree on message content, keeping primary payload")
					if msg.Origin == models.SourcePrimary {
						merged.Content = msg.Content
						merged.ID = msg.ID
						merged.Origin = msg.Origin
						merged.DeliveryState = msg.DeliveryState
					}
				}
				merged.IsRead = merged.IsRead || msg.IsRead
				thread[i] = merged
			} else {
				// Collapse the optimistic placeholder with its
				// authoritative counterpart, preserving its position.
				keep := msg
				if keep.QueuedAt.IsZero() {
					keep.QueuedAt = existing.QueuedAt
				}
				keep.IsRead = keep.IsRead || existing.IsRead
				thread[i] = keep
			}
			break
		}
	}

	if !replaced {
		thread = append(thread, msg)
	}
	sortThread(thread)
	s.threads[counterpartID] = thread
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.ThreadKind(counterpartID)})
	return !replaced
}

// Counterparts lists the counterpart ids with a loaded thread.
func (s *ThreadService) Counterparts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	return ids
}

// ReadState reports the stored read flag for a message, matched by
// correlation id first and backend id second.
func (s *ThreadService) ReadState(counterpartID string, msg models.Message) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.threads[counterpartID] {
		if msg.CorrelationID != "" && existing.CorrelationID == msg.CorrelationID {
			return existing.IsRead, true
		}
		if msg.ID != "" && existing.ID == msg.ID {
			return existing.IsRead, true
		}
	}
	return false, false
}

// UpdateByCorrelation mutates the message with the given correlation id, if
// present, and reports whether anything changed.
func (s *ThreadService) UpdateByCorrelation(counterpartID, correlationID string, fn func(*models.Message)) bool {
	s.mu.Lock()
	thread := s.threads[counterpartID]
	found := false
	for i := range thread {
		if thread[i].CorrelationID == correlationID {
			fn(&thread[i])
			found = true
			break
		}
	}
	if found {
		sortThread(thread)
		s.threads[counterpartID] = thread
	}
	s.mu.Unlock()

	if found {
		s.bus.Publish(bus.Event{Kind: bus.ThreadKind(counterpartID)})
	}
	return found
}

// MarkRead flips every unread inbound message in the thread, emits one
// read-state update per backend holding any of those records, and returns
// how many messages it flipped. Calling it again with nothing left unread
// touches no backend and returns zero.
func (s *ThreadService) MarkRead(ctx context.Context, userID, counterpartID string) (int, error) {
	s.mu.Lock()
	thread := s.threads[counterpartID]
	origins := make(map[models.Source]bool)
	changed := 0
	for i := range thread {
		m := &thread[i]
		if m.RecipientID == userID && m.SenderID == counterpartID && !m.IsRead {
			m.IsRead = true
			origins[m.Origin] = true
			changed++
		}
	}
	s.mu.Unlock()

	if changed == 0 {
		return 0, nil
	}
	s.bus.Publish(bus.Event{Kind: bus.ThreadKind(counterpartID)})

	if origins[models.SourcePrimary] || origins[models.SourceLocal] {
		if err := s.primary.MarkMessagesAsRead(ctx, userID, counterpartID); err != nil {
			errors.LogWarn(s.logger, err, "Primary read acknowledgment failed")
		}
	}
	if origins[models.SourceSecondary] {
		if _, err := s.secondary.MarkMessagesRead(ctx, userID, counterpartID); err != nil {
			errors.LogWarn(s.logger, err, "Secondary read acknowledgment failed")
		}
	}
	return changed, nil
}

// Thread returns a copy of the stored thread for a counterpart.
func (s *ThreadService) Thread(counterpartID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotThread(s.threads[counterpartID])
}

// sortThread orders messages by their authoritative timestamp (queued time
// for unconfirmed entries), stabilized by correlation id on exact ties.
func sortThread(thread []models.Message) {
	sort.SliceStable(thread, func(i, j int) bool {
		ti, tj := thread[i].OrderKey(), thread[j].OrderKey()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return thread[i].CorrelationID < thread[j].CorrelationID
	})
}

func snapshotThread(thread []models.Message) []models.Message {
	out := make([]models.Message, len(thread))
	copy(out, thread)
	return out
}
