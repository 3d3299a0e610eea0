package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"live-poll-service/internal/domain"
)

// Roster reads course membership from Redis:
//
//	SET  course:{id}:instructor {userID}
//	SADD course:{id}:participants {userID...}
type Roster struct {
	client *redis.Client
}

func NewRoster(client *redis.Client) *Roster {
	return &Roster{client: client}
}

func (r *Roster) IsInstructor(ctx context.Context, userID, courseID string) (bool, error) {
	instructor, err := r.client.Get(ctx, instructorKey(courseID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: instructor lookup: %v", domain.ErrStorageUnavailable, err)
	}
	return userID != "" && instructor == userID, nil
}

func (r *Roster) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	pipe := r.client.Pipeline()
	member := pipe.SIsMember(ctx, participantsKey(courseID), userID)
	instructor := pipe.Get(ctx, instructorKey(courseID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("%w: enrollment lookup: %v", domain.ErrStorageUnavailable, err)
	}
	if instructor.Val() == userID {
		return false, nil
	}
	return member.Val(), nil
}

// SeedCourse writes a course's roster, replacing any previous participants.
func (r *Roster) SeedCourse(ctx context.Context, c domain.Course) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, instructorKey(c.ID), c.InstructorID, 0)
	pipe.Del(ctx, participantsKey(c.ID))
	for _, p := range c.Participants {
		if p == c.InstructorID {
			continue
		}
		pipe.SAdd(ctx, participantsKey(c.ID), p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed course %s: %w", c.ID, err)
	}
	return nil
}

func instructorKey(courseID string) string {
	return "course:" + courseID + ":instructor"
}

func participantsKey(courseID string) string {
	return "course:" + courseID + ":participants"
}
