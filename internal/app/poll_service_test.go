package app_test

import (
	"context"
	"errors"
	"testing"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

func TestLifecycleRequiresInstructor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.draft(t, "7", "prof")

	if _, err := f.service.OpenQuestion(ctx, "s1", "7", q); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on open, got %v", err)
	}
	if err := f.service.CloseQuestion(ctx, "s1", "7", q); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on close, got %v", err)
	}
	// instructor of another course
	if _, err := f.service.OpenQuestion(ctx, "prof8", "7", q); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for foreign instructor, got %v", err)
	}
	_, err := f.service.CreateQuestion(ctx, "s1", domain.NewQuestion{
		CourseID:     "7",
		Prompt:       "?",
		Choices:      []domain.Choice{{Label: "A"}, {Label: "B"}},
		CorrectLabel: "A",
	})
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on create, got %v", err)
	}
	if _, ok, _ := f.registry.CurrentOpenQuestion(context.Background(), "7"); ok {
		t.Fatalf("unauthorized open must not change state")
	}
}

func TestJoinRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	role, err := f.service.Join(ctx, "7", newRecorder("a", "prof"))
	if err != nil || role != app.RoleInstructor {
		t.Fatalf("expected instructor role, got %q err=%v", role, err)
	}
	role, err = f.service.Join(ctx, "7", newRecorder("b", "s1"))
	if err != nil || role != app.RoleParticipant {
		t.Fatalf("expected participant role, got %q err=%v", role, err)
	}
	if _, err := f.service.Join(ctx, "7", newRecorder("c", "t1")); !errors.Is(err, domain.ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
	if _, err := f.service.Join(ctx, "99", newRecorder("d", "s1")); !errors.Is(err, domain.ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled for unknown course, got %v", err)
	}
}

func TestLateJoinerReceivesOpenQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q, err := f.service.PublishQuestion(ctx, "prof", domain.NewQuestion{
		CourseID:     "7",
		Prompt:       "Pick one",
		Choices:      []domain.Choice{{Label: "a", Text: "x"}, {Label: "b", Text: "y"}},
		CorrectLabel: "a",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if q.State != domain.StateOpen || q.OpenSeq != 1 {
		t.Fatalf("expected published question open with sequence 1, got %+v", q)
	}

	late := f.join(t, "7", "s3")
	opened := late.nextOf(t, domain.EventQuestionOpened).Payload.(domain.QuestionOpened)
	if opened.QuestionID != q.ID || opened.Sequence != 1 {
		t.Fatalf("unexpected catch-up event %+v", opened)
	}
	if len(opened.Choices) != 2 || opened.Choices[0].Label != "A" {
		t.Fatalf("expected normalized choices, got %+v", opened.Choices)
	}
}

func TestPublishQuestionValidates(t *testing.T) {
	f := newFixture(t)
	cases := []domain.NewQuestion{
		{CourseID: "7", Prompt: "", Choices: []domain.Choice{{Label: "A"}, {Label: "B"}}, CorrectLabel: "A"},
		{CourseID: "7", Prompt: "p", Choices: []domain.Choice{{Label: "A"}}, CorrectLabel: "A"},
		{CourseID: "7", Prompt: "p", Choices: []domain.Choice{{Label: "A"}, {Label: "a"}}, CorrectLabel: "A"},
		{CourseID: "7", Prompt: "p", Choices: []domain.Choice{{Label: "A"}, {Label: "B"}}, CorrectLabel: "C"},
	}
	for i, nq := range cases {
		if _, err := f.service.PublishQuestion(context.Background(), "prof", nq); !errors.Is(err, domain.ErrInvalidQuestion) {
			t.Fatalf("case %d: expected ErrInvalidQuestion, got %v", i, err)
		}
	}
	if _, ok, _ := f.registry.CurrentOpenQuestion(context.Background(), "7"); ok {
		t.Fatalf("invalid questions must not open")
	}
}
