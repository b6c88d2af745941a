// Package reminder tracks per-user silence and decides when follow-ups
// are due, one reminder per cadence tier.
package reminder

import (
	"sort"
	"sync"
	"time"

	"github.com/diasbot/insta-consultant/internal/models"
)

// Due is one reminder that became payable during a scheduler pass.
type Due struct {
	UserID  string
	Label   string
	Silence time.Duration
}

// Scheduler keeps last-activity timestamps and the set of tiers already
// sent per user. A new message from the user resets both.
type Scheduler struct {
	mu       sync.Mutex
	tiers    []models.Tier
	lastSeen map[string]time.Time
	sent     map[string]map[string]struct{}
}

func NewScheduler(tiers []models.Tier) *Scheduler {
	if len(tiers) == 0 {
		tiers = models.DefaultTiers()
	}
	sorted := make([]models.Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Interval < sorted[j].Interval })

	return &Scheduler{
		tiers:    sorted,
		lastSeen: make(map[string]time.Time),
		sent:     make(map[string]map[string]struct{}),
	}
}

// RecordActivity marks the user as active now. Re-engagement clears the
// sent tiers so the cadence starts over.
func (s *Scheduler) RecordActivity(userID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen[userID] = now
	s.sent[userID] = make(map[string]struct{})
}

// DueReminders emits, for every tracked user, each tier whose interval has
// elapsed and that has not been sent yet, in ascending interval order. A
// user silent past several tiers gets all of them in one pass; each tier is
// marked sent immediately so it is never emitted twice.
func (s *Scheduler) DueReminders(now time.Time) []Due {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Due
	users := make([]string, 0, len(s.lastSeen))
	for userID := range s.lastSeen {
		users = append(users, userID)
	}
	sort.Strings(users)

	for _, userID := range users {
		silence := now.Sub(s.lastSeen[userID])
		sent := s.sent[userID]
		if sent == nil {
			sent = make(map[string]struct{})
			s.sent[userID] = sent
		}
		for _, tier := range s.tiers {
			if _, already := sent[tier.Label]; already {
				continue
			}
			if silence > tier.Interval {
				sent[tier.Label] = struct{}{}
				due = append(due, Due{UserID: userID, Label: tier.Label, Silence: silence})
			}
		}
	}
	return due
}

// Tracked returns the number of users with recorded activity.
func (s *Scheduler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastSeen)
}
