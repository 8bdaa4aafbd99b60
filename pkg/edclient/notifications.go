package edclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// NotificationAPI is the part of the REST API the inbox needs.
type NotificationAPI interface {
	HasToken() bool
	Notifications(ctx context.Context) (*Inbox, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Snapshot is a point-in-time copy of the inbox.
type Snapshot struct {
	Notifications []Notification
	UnreadCount   int
	Loading       bool
}

// NotificationStore caches the user's inbox. The server stays the source
// of truth: fetch failures empty the cache instead of keeping stale data.
type NotificationStore struct {
	api    NotificationAPI
	logger zerolog.Logger

	mu        sync.Mutex
	items     []Notification
	unread    int
	loading   bool
	err       error
	seq       uint64
	listeners []func(Snapshot)
}

func NewNotificationStore(api NotificationAPI, logger zerolog.Logger) *NotificationStore {
	return &NotificationStore{api: api, logger: logger, items: []Notification{}}
}

// OnChange registers fn to receive a snapshot after every change.
func (s *NotificationStore) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Fetch replaces the cache with the server's inbox. Without a token it does
// nothing. Errors reset the cache to empty and are kept for Err.
func (s *NotificationStore) Fetch(ctx context.Context) {
	if !s.api.HasToken() {
		return
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.loading = true
	s.mu.Unlock()
	s.emit()

	inbox, err := s.api.Notifications(ctx)

	s.mu.Lock()
	if seq != s.seq {
		// A newer fetch owns the cache.
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.err = err
	if err != nil {
		s.logger.Warn().Err(err).Msg("notifications: fetch failed")
		s.items = []Notification{}
		s.unread = 0
	} else {
		s.items = append([]Notification{}, inbox.Notifications...)
		s.unread = inbox.UnreadCount
	}
	s.mu.Unlock()
	s.emit()
}

// Err reports the last fetch error, nil after a successful fetch.
func (s *NotificationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// AddRealtimeNotification handles a pushed "notification" event. A payload
// carrying a notification that is not cached yet is merged in place;
// anything else triggers a full fetch.
func (s *NotificationStore) AddRealtimeNotification(ctx context.Context, payload json.RawMessage) {
	var body struct {
		Notification *Notification `json:"notification"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Notification != nil && body.Notification.ID != "" {
		if s.merge(*body.Notification) {
			return
		}
	}
	s.Fetch(ctx)
}

func (s *NotificationStore) merge(n Notification) bool {
	s.mu.Lock()
	for _, existing := range s.items {
		if existing.ID == n.ID {
			s.mu.Unlock()
			return false
		}
	}
	// Invalidate any fetch still in flight; its result predates n.
	s.seq++
	s.loading = false
	s.items = append([]Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	s.mu.Unlock()
	s.emit()
	return true
}

// MarkOneAsRead marks id read on the server, then locally. Repeating the
// call does not change the unread count again. An id outside the cached
// page refreshes the inbox so the count follows the server.
func (s *NotificationStore) MarkOneAsRead(ctx context.Context, id string) error {
	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id).Msg("notifications: mark read failed")
		return err
	}

	s.mu.Lock()
	cached := false
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		cached = true
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			if s.unread > 0 {
				s.unread--
			}
		}
		break
	}
	s.mu.Unlock()

	if !cached {
		s.Fetch(ctx)
		return nil
	}
	s.emit()
	return nil
}

func (s *NotificationStore) MarkAllAsRead(ctx context.Context) error {
	if err := s.api.MarkAllNotificationsRead(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("notifications: mark all read failed")
		return err
	}

	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()
	s.emit()
	return nil
}

// ClearAll empties the local cache only. The server keeps the
// notifications and the next Fetch brings them back.
func (s *NotificationStore) ClearAll() {
	s.mu.Lock()
	s.seq++
	s.items = []Notification{}
	s.unread = 0
	s.loading = false
	s.mu.Unlock()
	s.logger.Debug().Msg("notifications: cleared locally, server not updated")
	s.emit()
}

func (s *NotificationStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *NotificationStore) snapshotLocked() Snapshot {
	return Snapshot{
		Notifications: append([]Notification{}, s.items...),
		UnreadCount:   s.unread,
		Loading:       s.loading,
	}
}

func (s *NotificationStore) emit() {
	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	ls := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(snap)
	}
}
