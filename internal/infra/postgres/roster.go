package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"live-poll-service/internal/domain"
)

// Roster reads course ownership and enrollment from the courses and enrollments tables.
type Roster struct {
	pool *pgxpool.Pool
}

func NewRoster(pool *pgxpool.Pool) *Roster {
	return &Roster{pool: pool}
}

func (r *Roster) IsInstructor(ctx context.Context, userID, courseID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1 AND instructor_id = $2)`,
		courseID, userID).Scan(&ok)
	if err != nil {
		return false, unavailable("instructor lookup", err)
	}
	return ok, nil
}

func (r *Roster) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM enrollments e JOIN courses c ON c.id = e.course_id
			WHERE e.course_id = $1 AND e.user_id = $2 AND c.instructor_id <> e.user_id
		)`, courseID, userID).Scan(&ok)
	if err != nil {
		return false, unavailable("enrollment lookup", err)
	}
	return ok, nil
}

// SeedCourse upserts a course, its users and enrollments.
func (r *Roster) SeedCourse(ctx context.Context, c domain.Course) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin seed", err)
	}
	defer tx.Rollback(ctx)

	users := append([]string{c.InstructorID}, c.Participants...)
	for _, u := range users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, username) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`, u); err != nil {
			return unavailable("seed user", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO courses (id, name, instructor_id) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, instructor_id = EXCLUDED.instructor_id`,
		c.ID, c.Name, c.InstructorID); err != nil {
		return unavailable("seed course", err)
	}
	for _, p := range c.Participants {
		if p == c.InstructorID {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p, c.ID); err != nil {
			return unavailable("seed enrollment", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit seed", err)
	}
	return nil
}
