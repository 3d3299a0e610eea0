package memory

import (
	"sync"

	"live-poll-service/internal/app"
)

// ChannelStore is an in-memory implementation of app.ChannelRepository.
type ChannelStore struct {
	buffer   int
	mu       sync.RWMutex
	channels map[string]*app.Channel
}

// NewChannelStore creates channels with the given ordered queue size (0 for the default).
func NewChannelStore(buffer int) *ChannelStore {
	return &ChannelStore{
		buffer:   buffer,
		channels: make(map[string]*app.Channel),
	}
}

func (s *ChannelStore) GetOrCreate(courseID string) *app.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[courseID]; ok {
		return ch
	}
	ch := app.NewChannelWithBuffer(courseID, s.buffer)
	s.channels[courseID] = ch
	return ch
}

func (s *ChannelStore) Get(courseID string) (*app.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[courseID]
	return ch, ok
}

func (s *ChannelStore) DeleteIfEmpty(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[courseID]
	if !ok {
		return
	}
	if ch.CloseIfEmpty() {
		delete(s.channels, courseID)
	}
}

// Len returns the number of live channels.
func (s *ChannelStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}
