package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-poll-service/internal/domain"
)

// OpenPolicy decides what happens when a question opens while another is open.
type OpenPolicy string

const (
	// OpenPolicySupersede force-closes the open question first.
	OpenPolicySupersede OpenPolicy = "supersede"
	// OpenPolicyReject fails with domain.ErrAlreadyOpen.
	OpenPolicyReject OpenPolicy = "reject"
)

// ParseOpenPolicy falls back to OpenPolicySupersede for unknown values.
func ParseOpenPolicy(raw string) OpenPolicy {
	if OpenPolicy(raw) == OpenPolicyReject {
		return OpenPolicyReject
	}
	return OpenPolicySupersede
}

// courseSession is the live state of one course. Writers hold mu exclusively;
// submissions hold it shared for the duration of validation and recording.
type courseSession struct {
	mu              sync.RWMutex
	hydrated        bool
	current         *domain.Question
	openSeq         uint64
	closedWatermark uint64
}

// SessionRegistry is the authoritative record of which question, if any, is
// open for each course. Lifecycle events are published while the course is
// still locked, after the new state is committed.
type SessionRegistry struct {
	questions QuestionRepository
	publisher Publisher
	policy    OpenPolicy
	logger    *slog.Logger

	mu      sync.Mutex
	courses map[string]*courseSession
}

func NewSessionRegistry(questions QuestionRepository, publisher Publisher, policy OpenPolicy, logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = OpenPolicySupersede
	}
	return &SessionRegistry{
		questions: questions,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		courses:   make(map[string]*courseSession),
	}
}

func (r *SessionRegistry) course(courseID string) *courseSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.courses[courseID]
	if !ok {
		s = &courseSession{}
		r.courses[courseID] = s
	}
	return s
}

// session returns the course's live state, loading what storage knows about
// the course on first use.
func (r *SessionRegistry) session(ctx context.Context, courseID string) (*courseSession, error) {
	s := r.course(courseID)
	s.mu.RLock()
	ready := s.hydrated
	s.mu.RUnlock()
	if ready {
		return s, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.hydrateLocked(ctx, courseID, s); err != nil {
		return nil, err
	}
	return s, nil
}

// hydrateLocked adopts questions a previous process left Open. The most
// recently opened one becomes current and any others are closed.
func (r *SessionRegistry) hydrateLocked(ctx context.Context, courseID string, s *courseSession) error {
	if s.hydrated {
		return nil
	}
	lc, err := r.questions.CourseLifecycle(ctx, courseID)
	if err != nil {
		return storageErr("load course lifecycle", err)
	}
	if lc.LastSeq > s.openSeq {
		s.openSeq = lc.LastSeq
	}
	for i, q := range lc.Open {
		if i == len(lc.Open)-1 {
			s.current = &q
			r.logger.Info("adopted open question", "course", courseID, "question", q.ID, "seq", q.OpenSeq)
			break
		}
		if err := r.questions.SetState(ctx, q.ID, domain.StateClosed, q.OpenSeq); err != nil {
			return storageErr("close question", err)
		}
		s.closedWatermark++
		r.publisher.Publish(courseID, domain.QuestionClosedEvent(q))
		r.logger.Info("orphaned question closed", "course", courseID, "question", q.ID)
	}
	s.hydrated = true
	return nil
}

// OpenQuestion transitions the question to Open, closing any question that is
// currently open for the course first. Opening the current question again is a no-op.
func (r *SessionRegistry) OpenQuestion(ctx context.Context, courseID, questionID string) (domain.Question, error) {
	s := r.course(courseID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.hydrateLocked(ctx, courseID, s); err != nil {
		return domain.Question{}, err
	}

	if s.current != nil && s.current.ID == questionID {
		return *s.current, nil
	}

	q, err := r.load(ctx, courseID, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if q.State == domain.StateClosed {
		return domain.Question{}, domain.ErrQuestionClosed
	}

	if s.current != nil {
		if r.policy == OpenPolicyReject {
			return domain.Question{}, domain.ErrAlreadyOpen
		}
		r.logger.Info("superseding open question", "course", courseID, "closing", s.current.ID, "opening", q.ID)
		if err := r.closeLocked(ctx, s); err != nil {
			return domain.Question{}, err
		}
	}

	seq := s.openSeq + 1
	if err := r.questions.SetState(ctx, q.ID, domain.StateOpen, seq); err != nil {
		return domain.Question{}, storageErr("open question", err)
	}
	s.openSeq = seq
	q.State = domain.StateOpen
	q.OpenSeq = seq
	s.current = &q

	r.publisher.Publish(courseID, domain.QuestionOpenedEvent(q))
	r.logger.Info("question opened", "course", courseID, "question", q.ID, "seq", seq)
	return q, nil
}

// CloseQuestion transitions an open question to Closed. It reports whether a
// transition happened; closing an already closed question is a no-op.
func (r *SessionRegistry) CloseQuestion(ctx context.Context, courseID, questionID string) (bool, error) {
	s := r.course(courseID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.hydrateLocked(ctx, courseID, s); err != nil {
		return false, err
	}

	if s.current != nil && s.current.ID == questionID {
		if err := r.closeLocked(ctx, s); err != nil {
			return false, err
		}
		return true, nil
	}

	q, err := r.load(ctx, courseID, questionID)
	if err != nil {
		return false, err
	}
	switch q.State {
	case domain.StateClosed:
		return false, nil
	case domain.StateDraft:
		return false, domain.ErrQuestionNotOpen
	}

	// Open in storage but not tracked here, e.g. left over from a previous process.
	if err := r.questions.SetState(ctx, q.ID, domain.StateClosed, q.OpenSeq); err != nil {
		return false, storageErr("close question", err)
	}
	s.closedWatermark++
	r.publisher.Publish(courseID, domain.QuestionClosedEvent(q))
	r.logger.Info("orphaned question closed", "course", courseID, "question", q.ID)
	return true, nil
}

func (r *SessionRegistry) closeLocked(ctx context.Context, s *courseSession) error {
	q := *s.current
	if err := r.questions.SetState(ctx, q.ID, domain.StateClosed, q.OpenSeq); err != nil {
		return storageErr("close question", err)
	}
	q.State = domain.StateClosed
	s.current = nil
	s.closedWatermark++
	r.publisher.Publish(q.CourseID, domain.QuestionClosedEvent(q))
	r.logger.Info("question closed", "course", q.CourseID, "question", q.ID, "seq", q.OpenSeq)
	return nil
}

func (r *SessionRegistry) load(ctx context.Context, courseID, questionID string) (domain.Question, error) {
	q, err := r.questions.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownQuestion) {
			return domain.Question{}, err
		}
		return domain.Question{}, storageErr("load question", err)
	}
	if q.CourseID != courseID {
		return domain.Question{}, domain.ErrUnknownQuestion
	}
	return q, nil
}

// CurrentOpenQuestion returns the open question for the course, if any.
func (r *SessionRegistry) CurrentOpenQuestion(ctx context.Context, courseID string) (domain.Question, bool, error) {
	s, err := r.session(ctx, courseID)
	if err != nil {
		return domain.Question{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.Question{}, false, nil
	}
	return *s.current, true, nil
}

// WithOpenQuestion runs fn while questionID is guaranteed to stay the open
// question of the course. It fails with domain.ErrQuestionNotOpen otherwise.
// fn must not call back into lifecycle operations for the same course.
func (r *SessionRegistry) WithOpenQuestion(ctx context.Context, courseID, questionID string, fn func(q domain.Question) error) error {
	s, err := r.session(ctx, courseID)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.ID != questionID {
		return domain.ErrQuestionNotOpen
	}
	return fn(*s.current)
}

// WithCurrentQuestion runs fn with the open question of the course, or nil,
// while no lifecycle change can happen for the course.
func (r *SessionRegistry) WithCurrentQuestion(ctx context.Context, courseID string, fn func(q *domain.Question)) error {
	s, err := r.session(ctx, courseID)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		fn(nil)
		return nil
	}
	q := *s.current
	fn(&q)
	return nil
}

// OpenSequence returns the last open sequence number this registry knows for the course.
func (r *SessionRegistry) OpenSequence(courseID string) uint64 {
	s := r.course(courseID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openSeq
}

// ClosedWatermark counts the questions closed for the course.
func (r *SessionRegistry) ClosedWatermark(courseID string) uint64 {
	s := r.course(courseID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closedWatermark
}

// storageErr keeps domain conditions reported by a store and marks anything
// else as domain.ErrStorageUnavailable.
func storageErr(op string, err error) error {
	if domain.IsDomain(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
}
