package app

import (
	"sync"

	"live-poll-service/internal/domain"
)

// DefaultChannelBuffer bounds the per-course ordered outbound queue.
const DefaultChannelBuffer = 256

// Subscriber is one live connection. Send must not block: it returns false
// when the connection's outbound queue is full or the connection is gone.
type Subscriber interface {
	ID() string
	ParticipantID() string
	Send(event domain.Event) bool
	Close()
}

type subscription struct {
	sub        Subscriber
	instructor bool
}

// Channel is the broadcast channel of one course. Events are queued in
// publish order and fanned out by a single goroutine, so every subscriber
// observes a course's events in the order they were published.
type Channel struct {
	courseID string
	queue    chan domain.Event
	done     chan struct{}
	start    sync.Once

	mu          sync.RWMutex
	closed      bool
	subscribers map[string]subscription
}

// NewChannel is exported for infrastructure layers that store channels.
func NewChannel(courseID string) *Channel {
	return NewChannelWithBuffer(courseID, DefaultChannelBuffer)
}

func NewChannelWithBuffer(courseID string, buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &Channel{
		courseID:    courseID,
		queue:       make(chan domain.Event, buffer),
		done:        make(chan struct{}),
		subscribers: make(map[string]subscription),
	}
}

// CourseID returns the course this channel serves.
func (c *Channel) CourseID() string {
	return c.courseID
}

// IsEmpty reports whether the channel has no subscribers.
func (c *Channel) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}

// Len returns the number of subscribers.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// CloseIfEmpty stops the channel when nobody is subscribed. It reports
// whether the channel is closed afterwards.
func (c *Channel) CloseIfEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	if len(c.subscribers) > 0 {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

func (c *Channel) run(drop func(Subscriber)) {
	c.start.Do(func() {
		go c.loop(drop)
	})
}

func (c *Channel) loop(drop func(Subscriber)) {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.queue:
			for _, sub := range c.audience(event) {
				if !sub.Send(event) {
					drop(sub)
				}
			}
		}
	}
}

func (c *Channel) audience(event domain.Event) []Subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := make([]Subscriber, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		if event.InstructorOnly && !s.instructor {
			continue
		}
		subs = append(subs, s.sub)
	}
	return subs
}

func (c *Channel) enqueue(event domain.Event) bool {
	select {
	case c.queue <- event:
		return true
	case <-c.done:
		return false
	}
}

func (c *Channel) add(sub Subscriber, instructor bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subscribers[sub.ID()] = subscription{sub: sub, instructor: instructor}
	return true
}

func (c *Channel) remove(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, subID)
}
