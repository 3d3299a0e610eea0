package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"live-poll-service/internal/domain"
)

// Grader validates, scores and records answer submissions. Every call sends
// exactly one private reply to the submitter; nothing about an individual
// answer is ever broadcast.
type Grader struct {
	questions QuestionRepository
	responses ResponseStore
	roster    RosterStore
	registry  *SessionRegistry
	replies   Replier
	tally     Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// GraderOption customizes a Grader.
type GraderOption func(*Grader)

// WithTally publishes a live answer tally to the course's instructors after each graded answer.
func WithTally(p Publisher) GraderOption {
	return func(g *Grader) { g.tally = p }
}

// WithClock is intended for tests that need deterministic timestamps.
func WithClock(now func() time.Time) GraderOption {
	return func(g *Grader) { g.now = now }
}

func NewGrader(questions QuestionRepository, responses ResponseStore, roster RosterStore, registry *SessionRegistry, replies Replier, logger *slog.Logger, opts ...GraderOption) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Grader{
		questions: questions,
		responses: responses,
		roster:    roster,
		registry:  registry,
		replies:   replies,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit grades one answer. The returned error is also reported to the
// submitter as a failed AnswerResult.
func (g *Grader) Submit(ctx context.Context, sub domain.Submission) (domain.AnswerResult, error) {
	result, err := g.grade(ctx, sub)
	if err != nil {
		result = domain.FailedResult(sub.QuestionID, err)
		if errors.Is(err, domain.ErrStorageUnavailable) {
			g.logger.Error("recording response failed", "participant", sub.ParticipantID, "question", sub.QuestionID, "err", err)
		} else {
			g.logger.Debug("submission rejected", "participant", sub.ParticipantID, "question", sub.QuestionID, "reason", result.Reason)
		}
	}
	g.replies.Reply(sub.ParticipantID, domain.AnswerResultEvent(result))
	return result, err
}

func (g *Grader) grade(ctx context.Context, sub domain.Submission) (domain.AnswerResult, error) {
	q, err := g.questions.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, storageErr("load question", err)
	}

	enrolled, err := g.roster.IsEnrolled(ctx, sub.ParticipantID, q.CourseID)
	if err != nil {
		return domain.AnswerResult{}, storageErr("check enrollment", err)
	}
	if !enrolled {
		return domain.AnswerResult{}, domain.ErrNotEnrolled
	}

	label := domain.NormalizeLabel(sub.Label)
	var grade int
	// The tally is published under the same fence, so it cannot trail the
	// question's close.
	err = g.registry.WithOpenQuestion(ctx, q.CourseID, q.ID, func(open domain.Question) error {
		if !open.HasChoice(label) {
			return domain.ErrInvalidChoice
		}
		correct, score := open.Grade(label)
		err := g.responses.RecordResponse(ctx, domain.Response{
			ParticipantID: sub.ParticipantID,
			QuestionID:    open.ID,
			Label:         label,
			Correct:       correct,
			Grade:         score,
			SubmittedAt:   g.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateSubmission) {
				return err
			}
			return storageErr("record response", err)
		}
		grade = score
		if g.tally != nil {
			g.publishTally(ctx, open)
		}
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return domain.SuccessResult(q.ID, grade), nil
}

func (g *Grader) publishTally(ctx context.Context, q domain.Question) {
	counts, err := g.responses.Tally(ctx, q.ID)
	if err != nil {
		g.logger.Warn("tally failed", "question", q.ID, "err", err)
		return
	}
	g.tally.Publish(q.CourseID, domain.QuestionTallyEvent(q.ID, counts))
}
