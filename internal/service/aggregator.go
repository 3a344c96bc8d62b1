package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/normalize"
	"chatsync/pkg/secondary"

	"github.com/sirupsen/logrus"
)

// ConversationService builds and maintains the top-level conversation list,
// one entry per counterpart, merging Primary and Secondary query results.
type ConversationService struct {
	primary   PrimaryStore
	secondary SecondaryStore
	bus       *bus.Bus
	logger    *logrus.Logger

	mu            sync.RWMutex
	conversations map[string]models.Conversation
}

// NewConversationService creates a conversation aggregator.
func NewConversationService(p PrimaryStore, s SecondaryStore, b *bus.Bus, logger *logrus.Logger) *ConversationService {
	return &ConversationService{
		primary:       p,
		secondary:     s,
		bus:           b,
		logger:        logger,
		conversations: make(map[string]models.Conversation),
	}
}

// LoadConversations refreshes the conversation list for a user. Primary is
// consulted first; a non-empty result wins. Otherwise the list is derived
// from Secondary's message rows. Failure of both sources yields an empty
// list plus the error, never a panic.
func (s *ConversationService) LoadConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	primaryConvs, primaryErr := s.primary.GetConversations(ctx, userID)
	if primaryErr == nil && len(primaryConvs) > 0 {
		for _, pc := range primaryConvs {
			s.Upsert(normalize.ConversationFromPrimary(pc))
		}
		return s.Snapshot(), nil
	}
	if primaryErr != nil {
		errors.LogWarn(s.logger, primaryErr, "Primary conversation query failed, deriving from secondary")
	}

	rows, secondaryErr := s.secondary.ListMessagesForUser(ctx, userID)
	if secondaryErr != nil {
		if primaryErr != nil {
			return nil, errors.Wrap(secondaryErr, errors.ErrCodeSourceUnavailable, "both conversation sources failed")
		}
		return nil, secondaryErr
	}

	for _, conv := range s.deriveFromRows(ctx, userID, rows) {
		s.Upsert(conv)
	}
	return s.Snapshot(), nil
}

// deriveFromRows groups a user's message rows by counterpart, taking the
// most recent row as the preview and counting inbound unread rows.
func (s *ConversationService) deriveFromRows(ctx context.Context, userID string, rows []secondary.MessageRow) []models.Conversation {
	type group struct {
		latest secondary.MessageRow
		unread int
	}
	groups := make(map[string]*group)

	// Rows arrive newest first, so the first row per counterpart is the
	// preview.
	for _, row := range rows {
		counterpart := row.SenderID
		if counterpart == userID {
			counterpart = row.RecipientID
		}
		g, ok := groups[counterpart]
		if !ok {
			g = &group{latest: row}
			groups[counterpart] = g
		}
		if row.RecipientID == userID && !row.IsRead {
			g.unread++
		}
	}

	result := make([]models.Conversation, 0, len(groups))
	for counterpart, g := range groups {
		stub := s.lookupProfile(ctx, counterpart)
		preview := g.latest.Content
		if preview == "" && g.latest.FileName != nil {
			preview = *g.latest.FileName
		}
		result = append(result, models.Conversation{
			CounterpartID:      counterpart,
			DisplayName:        stub.DisplayName,
			AvatarRef:          stub.AvatarRef,
			Placeholder:        stub.Placeholder,
			LastMessagePreview: preview,
			LastMessageAt:      g.latest.CreatedAt.UTC(),
			UnreadCount:        g.unread,
		})
	}
	return result
}

// lookupProfile resolves a counterpart profile: Primary first, Secondary as
// fallback, a minimal stub when neither yields one. A real profile from
// either source beats a placeholder from the other.
func (s *ConversationService) lookupProfile(ctx context.Context, id string) models.UserStub {
	best := models.UserStub{ID: id, Placeholder: true}

	if p, err := s.primary.GetUserByID(ctx, id); err == nil && p != nil {
		best = normalize.PreferProfile(best, normalize.ProfileFromPrimary(*p))
	}
	if best.Placeholder {
		if row, err := s.secondary.GetProfile(ctx, id); err == nil && row != nil {
			best = normalize.PreferProfile(best, normalize.ProfileFromSecondary(*row))
		}
	}
	return normalize.Finalize(best)
}

// Upsert inserts or merges the entry for a counterpart. Racing writers keep
// the higher unread count, the later last-message timestamp, and the best
// profile snapshot.
func (s *ConversationService) Upsert(entry models.Conversation) {
	s.mu.Lock()
	existing, ok := s.conversations[entry.CounterpartID]
	if ok {
		if existing.UnreadCount > entry.UnreadCount {
			entry.UnreadCount = existing.UnreadCount
		}
		if existing.LastMessageAt.After(entry.LastMessageAt) {
			entry.LastMessagePreview = existing.LastMessagePreview
			entry.LastMessageAt = existing.LastMessageAt
		}
		stub := normalize.PreferProfile(
			models.UserStub{ID: entry.CounterpartID, DisplayName: entry.DisplayName, AvatarRef: entry.AvatarRef, Placeholder: entry.Placeholder},
			models.UserStub{ID: existing.CounterpartID, DisplayName: existing.DisplayName, AvatarRef: existing.AvatarRef, Placeholder: existing.Placeholder},
		)
		entry.DisplayName = stub.DisplayName
		entry.AvatarRef = stub.AvatarRef
		entry.Placeholder = stub.Placeholder
	}
	s.conversations[entry.CounterpartID] = entry
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated})
}

// NoteMessage folds live message activity into a conversation entry: the
// preview advances when the message is newer, and unreadDelta adjusts the
// unread count. A counterpart without an entry gets a placeholder one.
func (s *ConversationService) NoteMessage(counterpartID, preview string, at time.Time, unreadDelta int) {
	s.mu.Lock()
	conv, ok := s.conversations[counterpartID]
	if !ok {
		conv = models.Conversation{CounterpartID: counterpartID, Placeholder: true}
	}
	if !at.Before(conv.LastMessageAt) {
		conv.LastMessagePreview = preview
		conv.LastMessageAt = at
	}
	conv.UnreadCount += unreadDelta
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}
	s.conversations[counterpartID] = conv
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated})
}

// EnsureConversationFor synthesizes a conversation entry for a deep-linked
// counterpart that has no local entry yet. At most one profile-lookup round
// trip; a stub is used when both backends come up empty.
func (s *ConversationService) EnsureConversationFor(ctx context.Context, counterpartID string) models.Conversation {
	s.mu.RLock()
	existing, ok := s.conversations[counterpartID]
	s.mu.RUnlock()
	if ok {
		return existing
	}

	stub := s.lookupProfile(ctx, counterpartID)
	entry := models.Conversation{
		CounterpartID: counterpartID,
		DisplayName:   stub.DisplayName,
		AvatarRef:     stub.AvatarRef,
		Placeholder:   stub.Placeholder,
	}
	s.Upsert(entry)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations[counterpartID]
}

// ResetUnread zeroes the unread count for a counterpart after an explicit
// read acknowledgment.
func (s *ConversationService) ResetUnread(counterpartID string) {
	s.mu.Lock()
	if conv, ok := s.conversations[counterpartID]; ok && conv.UnreadCount != 0 {
		conv.UnreadCount = 0
		s.conversations[counterpartID] = conv
		s.mu.Unlock()
		s.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated})
		return
	}
	s.mu.Unlock()
}

// Snapshot returns the conversation list sorted descending by last-message
// time, ties broken by counterpart id for determinism.
func (s *ConversationService) Snapshot() []models.Conversation {
	s.mu.RLock()
	result := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		result = append(result, conv)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastMessageAt.Equal(result[j].LastMessageAt) {
			return result[i].LastMessageAt.After(result[j].LastMessageAt)
		}
		return result[i].CounterpartID < result[j].CounterpartID
	})
	return result
}
