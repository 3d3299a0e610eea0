package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
	"live-poll-service/internal/domain"
)

func TestLivePollScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s1 := f.join(t, "7", "s1")
	s2 := f.join(t, "7", "s2")
	s3 := f.join(t, "7", "s3")

	q1 := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q1); err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := f.service.SubmitAnswer(ctx, "s1", q1, "B")
	if err != nil || res.Result != domain.ResultSuccess || *res.Grade != 100 {
		t.Fatalf("expected S1 success with 100, got %+v err=%v", res, err)
	}
	if r := answerOf(t, s1.nextOf(t, domain.EventAnswerResult)); *r.Grade != 100 {
		t.Fatalf("expected private grade 100, got %+v", r)
	}

	if _, err := f.service.SubmitAnswer(ctx, "s1", q1, "B"); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if r := answerOf(t, s1.nextOf(t, domain.EventAnswerResult)); r.Result != domain.ResultFail || r.Reason != "duplicate_submission" {
		t.Fatalf("expected duplicate reply, got %+v", r)
	}

	res, err = f.service.SubmitAnswer(ctx, "s2", q1, "C")
	if err != nil || *res.Grade != 0 {
		t.Fatalf("expected S2 success with 0, got %+v err=%v", res, err)
	}
	if r := answerOf(t, s2.nextOf(t, domain.EventAnswerResult)); r.Result != domain.ResultSuccess || *r.Grade != 0 {
		t.Fatalf("expected private grade 0, got %+v", r)
	}

	if err := f.service.CloseQuestion(ctx, "prof", "7", q1); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, "s3", q1, "A"); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected ErrQuestionNotOpen, got %v", err)
	}
	if r := answerOf(t, s3.nextOf(t, domain.EventAnswerResult)); r.Reason != "question_not_open" {
		t.Fatalf("expected question_not_open reply, got %+v", r)
	}

	if n := len(f.store.Responses(q1)); n != 2 {
		t.Fatalf("expected 2 responses, got %d", n)
	}
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "7", "s1")
	q := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q); err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 32
	var ok, dup atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.service.SubmitAnswer(ctx, "s1", q, "A")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDuplicateSubmission):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Load() != 1 || dup.Load() != n-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", n-1, ok.Load(), dup.Load())
	}
	if got := len(f.store.Responses(q)); got != 1 {
		t.Fatalf("expected exactly one response, got %d", got)
	}
}

func TestSubmitToQuestionThatIsNotOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	draft := f.draft(t, "7", "prof")

	if _, err := f.service.SubmitAnswer(ctx, "s1", draft, "B"); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected ErrQuestionNotOpen for draft, got %v", err)
	}

	superseded := f.draft(t, "7", "prof")
	next := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", superseded); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", next); err != nil {
		t.Fatalf("open next: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, "s1", superseded, "B"); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected ErrQuestionNotOpen for superseded question, got %v", err)
	}

	if n := len(f.store.Responses(draft)) + len(f.store.Responses(superseded)); n != 0 {
		t.Fatalf("expected no responses, got %d", n)
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q); err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name        string
		participant string
		questionID  string
		label       string
		want        error
	}{
		{"unknown question", "s1", "nope", "A", domain.ErrUnknownQuestion},
		{"invalid choice", "s1", q, "E", domain.ErrInvalidChoice},
		{"not enrolled", "t1", q, "A", domain.ErrNotEnrolled},
		{"instructor is not graded", "prof", q, "B", domain.ErrNotEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.service.SubmitAnswer(ctx, tt.participant, tt.questionID, tt.label)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if res.Result != domain.ResultFail || res.Grade != nil {
				t.Fatalf("expected failed result without grade, got %+v", res)
			}
		})
	}
	if n := len(f.store.Responses(q)); n != 0 {
		t.Fatalf("expected no responses, got %d", n)
	}

	// labels are normalized before grading
	res, err := f.service.SubmitAnswer(ctx, "s2", q, " b ")
	if err != nil || *res.Grade != 100 {
		t.Fatalf("expected normalized label to grade 100, got %+v err=%v", res, err)
	}
}

func TestStorageFailureReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *fixtureConfig) { c.responses = failingResponses{} })
	s1 := f.join(t, "7", "s1")
	q := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.service.SubmitAnswer(ctx, "s1", q, "B"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if r := answerOf(t, s1.nextOf(t, domain.EventAnswerResult)); r.Reason != "storage_unavailable" {
		t.Fatalf("expected storage_unavailable reply, got %+v", r)
	}
}

func TestGradesAreNeverBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *fixtureConfig) { c.tally = true })
	instructor := f.join(t, "7", "prof")
	s1 := f.join(t, "7", "s1")
	s2 := f.join(t, "7", "s2")
	q := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q); err != nil {
		t.Fatalf("open: %v", err)
	}
	s2.nextOf(t, domain.EventQuestionOpened)

	if _, err := f.service.SubmitAnswer(ctx, "s1", q, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s1.nextOf(t, domain.EventAnswerResult)

	tally := instructor.nextOf(t, domain.EventQuestionTally).Payload.(domain.QuestionTally)
	if tally.Responses != 1 || tally.Counts["B"] != 1 {
		t.Fatalf("unexpected tally %+v", tally)
	}
	s2.expectNone(t)
}

func TestTallyPrecedesClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *fixtureConfig) { c.tally = true })
	instructor := f.join(t, "7", "prof")
	f.join(t, "7", "s1")
	q := f.draft(t, "7", "prof")
	if _, err := f.service.OpenQuestion(ctx, "prof", "7", q); err != nil {
		t.Fatalf("open: %v", err)
	}

	var g errgroup.Group
	for _, user := range []string{"s1", "s2", "s3"} {
		user := user
		g.Go(func() error {
			_, _ = f.service.SubmitAnswer(ctx, user, q, "A")
			return nil
		})
	}
	g.Go(func() error {
		return f.service.CloseQuestion(ctx, "prof", "7", q)
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if e := instructor.next(t); e.Type != domain.EventQuestionOpened {
		t.Fatalf("expected questionOpened first, got %s", e.Type)
	}
	for {
		e := instructor.next(t)
		if e.Type == domain.EventQuestionClosed {
			break
		}
		if e.Type != domain.EventQuestionTally {
			t.Fatalf("unexpected event %s", e.Type)
		}
	}
	instructor.expectNone(t)
}
