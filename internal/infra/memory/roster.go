package memory

import (
	"context"

	"live-poll-service/internal/domain"
)

// StaticRoster is a roster backed by a fixed course list (config or tests).
type StaticRoster struct {
	courses map[string]rosterEntry
}

type rosterEntry struct {
	instructor   string
	participants map[string]struct{}
}

func NewStaticRoster(courses []domain.Course) *StaticRoster {
	r := &StaticRoster{courses: make(map[string]rosterEntry, len(courses))}
	for _, c := range courses {
		entry := rosterEntry{instructor: c.InstructorID, participants: make(map[string]struct{}, len(c.Participants))}
		for _, p := range c.Participants {
			if p == c.InstructorID {
				continue
			}
			entry.participants[p] = struct{}{}
		}
		r.courses[c.ID] = entry
	}
	return r
}

func (r *StaticRoster) IsInstructor(_ context.Context, userID, courseID string) (bool, error) {
	entry, ok := r.courses[courseID]
	return ok && userID != "" && entry.instructor == userID, nil
}

func (r *StaticRoster) IsEnrolled(_ context.Context, userID, courseID string) (bool, error) {
	entry, ok := r.courses[courseID]
	if !ok {
		return false, nil
	}
	_, enrolled := entry.participants[userID]
	return enrolled, nil
}
