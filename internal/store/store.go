package store

import (
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookdesk/internal/model"
	"github.com/md-rashed-zaman/bookdesk/internal/partition"
)

// Store holds the client-side snapshot of appointments and notifications.
// It is the only shared mutable state in the process; all mutation goes
// through ReplaceAll, ApplyNotification, or SetNotifications, so readers
// always observe a fully-formed snapshot.
type Store struct {
	mu sync.RWMutex

	appts   []model.Appointment
	lastSeq uint64

	notifs    []model.Notification
	seenNotif map[int64]struct{}

	// stale carries the "snapshot may be out of date" signal to whoever
	// owns the refresh path. Buffered by one so signals coalesce instead
	// of blocking the push reader.
	stale chan struct{}
}

func New() *Store {
	return &Store{
		seenNotif: map[int64]struct{}{},
		stale:     make(chan struct{}, 1),
	}
}

// ReplaceAll swaps the entire snapshot with the result of fetch number seq.
// Fetches that complete out of order are discarded: a seq at or below the
// last applied one returns false and leaves the snapshot untouched.
// Duplicate ids within appts collapse to the last occurrence.
func (s *Store) ReplaceAll(seq uint64, appts []model.Appointment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq

	byID := make(map[int64]int, len(appts))
	deduped := make([]model.Appointment, 0, len(appts))
	for _, apt := range appts {
		if i, ok := byID[apt.ID]; ok {
			deduped[i] = apt
			continue
		}
		byID[apt.ID] = len(deduped)
		deduped = append(deduped, apt)
	}
	s.appts = deduped
	return true
}

// Snapshot returns a copy of the current appointment collection.
func (s *Store) Snapshot() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Appointment, len(s.appts))
	copy(out, s.appts)
	return out
}

// Views recomputes the partitioned read model against ref. Derived state is
// never cached; a small business's booking volume makes recomputation cheap.
func (s *Store) Views(ref time.Time) partition.Views {
	return partition.Split(s.Snapshot(), ref)
}

// ClientViews recomputes the per-client upcoming/history split.
func (s *Store) ClientViews(ref time.Time, email string) partition.UserViews {
	return partition.ForClient(s.Snapshot(), ref, email)
}

// ApplyNotification records a push-delivered notification and flags the
// snapshot as possibly stale. A notification id already seen (a duplicate
// delivery after reconnect) is dropped and reported as false; duplicates
// must not inflate the unread count. The backend's live broadcast carries
// no id at all, so dedupe only applies when the payload actually
// identified itself — id-less notifications are always recorded.
func (s *Store) ApplyNotification(n model.Notification) bool {
	s.mu.Lock()
	if n.ID > 0 {
		if _, dup := s.seenNotif[n.ID]; dup {
			s.mu.Unlock()
			return false
		}
		s.seenNotif[n.ID] = struct{}{}
	}
	s.notifs = append([]model.Notification{n}, s.notifs...)
	s.mu.Unlock()

	s.markStale()
	return true
}

// SetNotifications replaces the notification list from a full fetch,
// ordered most-recent-first.
func (s *Store) SetNotifications(notifs []model.Notification) {
	sorted := make([]model.Notification, len(notifs))
	copy(sorted, notifs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].CreatedAt.Before(sorted[i].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifs = sorted
	s.seenNotif = make(map[int64]struct{}, len(sorted))
	for _, n := range sorted {
		s.seenNotif[n.ID] = struct{}{}
	}
}

func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, len(s.notifs))
	copy(out, s.notifs)
	return out
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifs {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// Stale exposes the staleness signal channel. Receiving drains the flag.
func (s *Store) Stale() <-chan struct{} {
	return s.stale
}

func (s *Store) markStale() {
	select {
	case s.stale <- struct{}{}:
	default:
	}
}
