package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"live-poll-service/internal/domain"
)

func TestResponseStoreRecordsOnce(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	store := NewResponseStore(client)

	first := domain.Response{ParticipantID: "s1", QuestionID: "q1", Label: "B", Correct: true, Grade: domain.MaxGrade}
	if err := store.RecordResponse(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := first
	second.Label = "A"
	if err := store.RecordResponse(ctx, second); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	got, ok, err := store.Response(ctx, "q1", "s1")
	if err != nil || !ok {
		t.Fatalf("load response: ok=%v err=%v", ok, err)
	}
	if got.Label != "B" || got.Grade != domain.MaxGrade {
		t.Fatalf("first response must win, got %+v", got)
	}
	if _, ok, _ := store.Response(ctx, "q1", "s2"); ok {
		t.Fatalf("unexpected response for s2")
	}

	if v := mr.HGet("tally:q1", "B"); v != "1" {
		t.Fatalf("expected tally 1 for B, got %q", v)
	}
	if mr.HGet("tally:q1", "A") != "" {
		t.Fatalf("rejected duplicate must not be counted")
	}
}

func TestResponseStoreConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	store := NewResponseStore(client)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RecordResponse(ctx, domain.Response{ParticipantID: "s1", QuestionID: "q1", Label: "C"})
			if err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, domain.ErrDuplicateSubmission) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Fatalf("expected exactly one accepted response, got %d", accepted.Load())
	}
	counts, err := store.Tally(ctx, "q1")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if counts["C"] != 1 {
		t.Fatalf("unexpected tally %v", counts)
	}
}

func TestResponseStoreUnavailable(t *testing.T) {
	mr, client := newClient(t)
	store := NewResponseStore(client)
	mr.Close()

	err := store.RecordResponse(context.Background(), domain.Response{ParticipantID: "s1", QuestionID: "q1", Label: "A"})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
