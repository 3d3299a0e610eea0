package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-poll-service/internal/domain"
)

const uniqueViolation = "23505"

// Store persists questions, choices and responses in Postgres. It implements
// app.QuestionRepository and app.ResponseStore.
type Store struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, clock: time.Now}
}

func (s *Store) CreateQuestion(ctx context.Context, nq domain.NewQuestion) (string, error) {
	id := uuid.NewString()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", unavailable("begin create question", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO questions (id, course_id, prompt, correct_label, state, open_seq, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		id, nq.CourseID, nq.Prompt, nq.CorrectLabel, string(domain.StateDraft), s.clock().UTC())
	if err != nil {
		return "", unavailable("insert question", err)
	}
	for i, c := range nq.Choices {
		_, err := tx.Exec(ctx,
			`INSERT INTO choices (question_id, position, label, text) VALUES ($1, $2, $3, $4)`,
			id, i, c.Label, c.Text)
		if err != nil {
			return "", unavailable("insert choice", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", unavailable("commit question", err)
	}
	return id, nil
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var (
		q     domain.Question
		state string
		seq   int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, course_id, prompt, correct_label, state, open_seq, created_at
		 FROM questions WHERE id = $1`, questionID,
	).Scan(&q.ID, &q.CourseID, &q.Prompt, &q.CorrectLabel, &state, &seq, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrUnknownQuestion
	}
	if err != nil {
		return domain.Question{}, unavailable("load question", err)
	}
	q.State = domain.LifecycleState(state)
	q.OpenSeq = uint64(seq)

	rows, err := s.pool.Query(ctx,
		`SELECT label, text FROM choices WHERE question_id = $1 ORDER BY position`, questionID)
	if err != nil {
		return domain.Question{}, unavailable("load choices", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Choice
		if err := rows.Scan(&c.Label, &c.Text); err != nil {
			return domain.Question{}, unavailable("scan choice", err)
		}
		q.Choices = append(q.Choices, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Question{}, unavailable("load choices", err)
	}
	return q, nil
}

// SetState updates the lifecycle field. A closed question never moves again.
func (s *Store) SetState(ctx context.Context, questionID string, state domain.LifecycleState, openSeq uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET state = $2, open_seq = $3
		 WHERE id = $1 AND (state <> 'closed' OR $2 = 'closed')`,
		questionID, string(state), int64(openSeq))
	if err != nil {
		return unavailable("update question state", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, questionID).Scan(&exists); err != nil {
		return unavailable("check question", err)
	}
	if !exists {
		return domain.ErrUnknownQuestion
	}
	return domain.ErrQuestionClosed
}

func (s *Store) CourseLifecycle(ctx context.Context, courseID string) (domain.CourseLifecycle, error) {
	var (
		lc   domain.CourseLifecycle
		last int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(open_seq), 0) FROM questions WHERE course_id = $1`, courseID).Scan(&last)
	if err != nil {
		return lc, unavailable("load last sequence", err)
	}
	lc.LastSeq = uint64(last)

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM questions WHERE course_id = $1 AND state = 'open' ORDER BY open_seq`, courseID)
	if err != nil {
		return lc, unavailable("load open questions", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return lc, unavailable("scan open question", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return lc, unavailable("load open questions", err)
	}

	for _, id := range ids {
		q, err := s.GetQuestion(ctx, id)
		if err != nil {
			return lc, err
		}
		lc.Open = append(lc.Open, q)
	}
	return lc, nil
}

// RecordResponse relies on the (question_id, participant_id) primary key for
// duplicate detection, so concurrent inserts need no application lock.
func (s *Store) RecordResponse(ctx context.Context, r domain.Response) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO responses (question_id, participant_id, label, correct, grade, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.QuestionID, r.ParticipantID, r.Label, r.Correct, r.Grade, r.SubmittedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateSubmission
		}
		return unavailable("insert response", err)
	}
	return nil
}

func (s *Store) Tally(ctx context.Context, questionID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, count(*) FROM responses WHERE question_id = $1 GROUP BY label`, questionID)
	if err != nil {
		return nil, unavailable("tally", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int64
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, unavailable("scan tally", err)
		}
		counts[label] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("tally", err)
	}
	return counts, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
}
