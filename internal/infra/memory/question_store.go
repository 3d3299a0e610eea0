package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"live-poll-service/internal/domain"
)

// QuestionStore keeps questions and responses in process memory. It implements
// both app.QuestionRepository and app.ResponseStore.
type QuestionStore struct {
	clock func() time.Time

	mu        sync.RWMutex
	questions map[string]domain.Question
	responses map[responseKey]domain.Response
	tallies   map[string]map[string]int
}

type responseKey struct {
	questionID    string
	participantID string
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		clock:     time.Now,
		questions: make(map[string]domain.Question),
		responses: make(map[responseKey]domain.Response),
		tallies:   make(map[string]map[string]int),
	}
}

func (s *QuestionStore) CreateQuestion(_ context.Context, nq domain.NewQuestion) (string, error) {
	q := domain.Question{
		ID:           uuid.NewString(),
		CourseID:     nq.CourseID,
		Prompt:       nq.Prompt,
		Choices:      append([]domain.Choice(nil), nq.Choices...),
		CorrectLabel: nq.CorrectLabel,
		State:        domain.StateDraft,
		CreatedAt:    s.clock().UTC(),
	}
	s.mu.Lock()
	s.questions[q.ID] = q
	s.mu.Unlock()
	return q.ID, nil
}

// Put stores a question as-is; useful for seeding.
func (s *QuestionStore) Put(q domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.State == "" {
		q.State = domain.StateDraft
	}
	s.questions[q.ID] = q
}

func (s *QuestionStore) GetQuestion(_ context.Context, questionID string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrUnknownQuestion
	}
	q.Choices = append([]domain.Choice(nil), q.Choices...)
	return q, nil
}

func (s *QuestionStore) SetState(_ context.Context, questionID string, state domain.LifecycleState, openSeq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.ErrUnknownQuestion
	}
	if q.State == domain.StateClosed && state != domain.StateClosed {
		return domain.ErrQuestionClosed
	}
	q.State = state
	q.OpenSeq = openSeq
	s.questions[questionID] = q
	return nil
}

func (s *QuestionStore) CourseLifecycle(_ context.Context, courseID string) (domain.CourseLifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lc domain.CourseLifecycle
	for _, q := range s.questions {
		if q.CourseID != courseID {
			continue
		}
		if q.OpenSeq > lc.LastSeq {
			lc.LastSeq = q.OpenSeq
		}
		if q.State == domain.StateOpen {
			q.Choices = append([]domain.Choice(nil), q.Choices...)
			lc.Open = append(lc.Open, q)
		}
	}
	sort.Slice(lc.Open, func(i, j int) bool { return lc.Open[i].OpenSeq < lc.Open[j].OpenSeq })
	return lc, nil
}

func (s *QuestionStore) RecordResponse(_ context.Context, r domain.Response) error {
	key := responseKey{questionID: r.QuestionID, participantID: r.ParticipantID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.responses[key]; exists {
		return domain.ErrDuplicateSubmission
	}
	s.responses[key] = r
	counts, ok := s.tallies[r.QuestionID]
	if !ok {
		counts = make(map[string]int)
		s.tallies[r.QuestionID] = counts
	}
	counts[r.Label]++
	return nil
}

func (s *QuestionStore) Tally(_ context.Context, questionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.tallies[questionID]))
	for label, n := range s.tallies[questionID] {
		out[label] = n
	}
	return out, nil
}

// Responses lists recorded responses for a question.
func (s *QuestionStore) Responses(questionID string) []domain.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Response
	for key, r := range s.responses {
		if key.questionID == questionID {
			out = append(out, r)
		}
	}
	return out
}
