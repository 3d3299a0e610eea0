package app

import (
	"context"

	"live-poll-service/internal/domain"
)

// QuestionRepository owns question records and their lifecycle field.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q domain.NewQuestion) (string, error)
	// GetQuestion returns domain.ErrUnknownQuestion when absent.
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
	// SetState returns domain.ErrQuestionClosed when moving a Closed question
	// to any other state.
	SetState(ctx context.Context, questionID string, state domain.LifecycleState, openSeq uint64) error
	// CourseLifecycle reads the course's persisted lifecycle, bypassing caches.
	CourseLifecycle(ctx context.Context, courseID string) (domain.CourseLifecycle, error)
}

// ResponseStore is the append-only response log.
type ResponseStore interface {
	// RecordResponse inserts r, returning domain.ErrDuplicateSubmission if
	// (participant, question) already has a response. The check and insert are atomic.
	RecordResponse(ctx context.Context, r domain.Response) error
	// Tally returns answer counts per label for a question.
	Tally(ctx context.Context, questionID string) (map[string]int, error)
}

// RosterStore answers course membership questions. Read-only.
type RosterStore interface {
	IsInstructor(ctx context.Context, userID, courseID string) (bool, error)
	// IsEnrolled is false for the course instructor.
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// ChannelRepository holds the live per-course broadcast channels.
type ChannelRepository interface {
	GetOrCreate(courseID string) *Channel
	Get(courseID string) (*Channel, bool)
	// DeleteIfEmpty closes and drops the channel when it has no subscribers.
	DeleteIfEmpty(courseID string)
}

// Publisher fans an event out to a course's subscribers.
type Publisher interface {
	Publish(courseID string, event domain.Event)
}

// Replier delivers an event privately to a participant's connections.
type Replier interface {
	Reply(participantID string, event domain.Event)
}
