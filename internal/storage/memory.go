package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diasbot/insta-consultant/internal/models"
)

// MemoryStorage is the in-process LeadStorage used for development and
// tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	leads map[string]*models.Lead
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{leads: make(map[string]*models.Lead)}
}

func (s *MemoryStorage) GetLead(ctx context.Context, instagramID string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[instagramID]
	if !ok {
		return nil, nil
	}
	copied := *lead
	return &copied, nil
}

func (s *MemoryStorage) UpsertLead(ctx context.Context, instagramID string, update models.LeadUpdate) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[instagramID]
	if !ok {
		lead = &models.Lead{InstagramID: instagramID}
		s.leads[instagramID] = lead
	}
	lead.Apply(update)
	lead.UpdatedAt = time.Now()

	copied := *lead
	return &copied, nil
}

func (s *MemoryStorage) LeadsNeedingReminder(ctx context.Context) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Lead
	for _, lead := range s.leads {
		if needsReminder(lead) {
			copied := *lead
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstagramID < out[j].InstagramID })
	return out, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func needsReminder(lead *models.Lead) bool {
	switch lead.FinalDecision {
	case "", models.DecisionNotSure, models.DecisionThinking:
		return true
	}
	return !lead.Paid
}
