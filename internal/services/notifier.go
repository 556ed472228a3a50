package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"lootbox-backend/internal/models"
)

type Notifier interface {
	Notify(n models.Notification)
}

// Notifications keeps short-lived per-owner notices and pushes each one to the
// broadcaster. Notices are shown once and expire after ttl.
type Notifications struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	ttl         time.Duration
	byOwner     map[string][]models.Notification
	broadcaster Broadcaster
}

func NewNotifications(clock clockwork.Clock, ttl time.Duration, broadcaster Broadcaster) *Notifications {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifications{
		clock:       clock,
		ttl:         ttl,
		byOwner:     make(map[string][]models.Notification),
		broadcaster: broadcaster,
	}
}

func (n *Notifications) Notify(note models.Notification) {
	now := n.clock.Now()
	if note.ID == "" {
		note.ID = models.GenerateNotificationID()
	}
	note.CreatedAt = now
	note.ExpiresAt = now.Add(n.ttl)

	n.mu.Lock()
	n.byOwner[note.Owner] = append(n.pruneLocked(note.Owner, now), note)
	n.mu.Unlock()

	if n.broadcaster != nil {
		n.broadcaster.BroadcastNotification(note)
	}
}

// Recent returns the owner's notices that have not expired yet.
func (n *Notifications) Recent(owner string) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	live := n.pruneLocked(owner, n.clock.Now())
	if len(live) == 0 {
		delete(n.byOwner, owner)
		return []models.Notification{}
	}
	n.byOwner[owner] = live
	return append([]models.Notification(nil), live...)
}

// CleanupExpired drops every expired notice, including those of owners that
// never came back to read them.
func (n *Notifications) CleanupExpired() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	for owner := range n.byOwner {
		if live := n.pruneLocked(owner, now); len(live) > 0 {
			n.byOwner[owner] = live
		} else {
			delete(n.byOwner, owner)
		}
	}
}

// Owners is the number of owners holding at least one stored notice.
func (n *Notifications) Owners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.byOwner)
}

func (n *Notifications) pruneLocked(owner string, now time.Time) []models.Notification {
	notes := n.byOwner[owner]
	live := notes[:0]
	for _, note := range notes {
		if now.Before(note.ExpiresAt) {
			live = append(live, note)
		}
	}
	return live
}
