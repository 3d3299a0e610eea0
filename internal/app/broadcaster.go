package app

import (
	"log/slog"
	"sync"

	"live-poll-service/internal/domain"
)

type membership struct {
	sub     Subscriber
	courses map[string]struct{}
}

// Broadcaster fans events out to course channels and delivers private
// replies to participants. It owns the connection table for one service instance.
type Broadcaster struct {
	channels ChannelRepository
	logger   *slog.Logger

	mu            sync.RWMutex
	conns         map[string]*membership
	byParticipant map[string]map[string]Subscriber
}

func NewBroadcaster(channels ChannelRepository, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		channels:      channels,
		logger:        logger,
		conns:         make(map[string]*membership),
		byParticipant: make(map[string]map[string]Subscriber),
	}
}

// Attach registers a connection for private replies without joining any course.
func (b *Broadcaster) Attach(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachLocked(sub)
}

func (b *Broadcaster) attachLocked(sub Subscriber) *membership {
	if m, ok := b.conns[sub.ID()]; ok {
		return m
	}
	m := &membership{sub: sub, courses: make(map[string]struct{})}
	b.conns[sub.ID()] = m
	byID, ok := b.byParticipant[sub.ParticipantID()]
	if !ok {
		byID = make(map[string]Subscriber)
		b.byParticipant[sub.ParticipantID()] = byID
	}
	byID[sub.ID()] = sub
	return m
}

// Subscribe adds sub to the course channel. Subscribing twice is a no-op.
func (b *Broadcaster) Subscribe(courseID string, sub Subscriber, instructor bool) {
	b.mu.Lock()
	m := b.attachLocked(sub)
	m.courses[courseID] = struct{}{}
	b.mu.Unlock()

	for {
		ch := b.channels.GetOrCreate(courseID)
		ch.run(b.drop)
		if ch.add(sub, instructor) {
			break
		}
		// lost a race with garbage collection of an empty channel
		b.channels.DeleteIfEmpty(courseID)
	}

	// A concurrent Unsubscribe may have run between the two steps above.
	b.mu.RLock()
	_, still := b.conns[sub.ID()]
	b.mu.RUnlock()
	if !still {
		b.leave(courseID, sub.ID())
	}
	b.logger.Debug("subscribed", "course", courseID, "participant", sub.ParticipantID(), "conn", sub.ID())
}

// Unsubscribe removes sub from every course channel and from private replies.
func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	m, ok := b.conns[sub.ID()]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.conns, sub.ID())
	if byID, ok := b.byParticipant[sub.ParticipantID()]; ok {
		delete(byID, sub.ID())
		if len(byID) == 0 {
			delete(b.byParticipant, sub.ParticipantID())
		}
	}
	courses := make([]string, 0, len(m.courses))
	for courseID := range m.courses {
		courses = append(courses, courseID)
	}
	b.mu.Unlock()

	for _, courseID := range courses {
		b.leave(courseID, sub.ID())
	}
}

func (b *Broadcaster) leave(courseID, subID string) {
	if ch, ok := b.channels.Get(courseID); ok {
		ch.remove(subID)
	}
	b.channels.DeleteIfEmpty(courseID)
}

// Publish queues event for every current subscriber of the course.
// Events for a course are delivered in publish order.
func (b *Broadcaster) Publish(courseID string, event domain.Event) {
	ch, ok := b.channels.Get(courseID)
	if !ok {
		b.logger.Debug("publish with no subscribers", "course", courseID, "event", event.Type)
		return
	}
	ch.enqueue(event)
}

// Reply delivers event to the participant's connections, if any are live.
func (b *Broadcaster) Reply(participantID string, event domain.Event) {
	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.byParticipant[participantID]))
	for _, sub := range b.byParticipant[participantID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.Send(event) {
			b.drop(sub)
		}
	}
}

// drop disconnects a subscriber that cannot keep up.
func (b *Broadcaster) drop(sub Subscriber) {
	b.logger.Warn("dropping slow subscriber", "participant", sub.ParticipantID(), "conn", sub.ID())
	b.Unsubscribe(sub)
	sub.Close()
}
