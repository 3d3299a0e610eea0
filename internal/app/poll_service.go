package app

import (
	"context"
	"log/slog"

	"live-poll-service/internal/domain"
)

// Role is the part a connection plays in a course.
type Role string

const (
	RoleInstructor  Role = "instructor"
	RoleParticipant Role = "participant"
)

// PollService is the entry point for connections: joining courses, the
// instructor-gated lifecycle controls, and answer submission.
type PollService struct {
	questions   QuestionRepository
	roster      RosterStore
	registry    *SessionRegistry
	broadcaster *Broadcaster
	grader      *Grader
	logger      *slog.Logger
}

func NewPollService(questions QuestionRepository, roster RosterStore, registry *SessionRegistry, broadcaster *Broadcaster, grader *Grader, logger *slog.Logger) *PollService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollService{
		questions:   questions,
		roster:      roster,
		registry:    registry,
		broadcaster: broadcaster,
		grader:      grader,
		logger:      logger,
	}
}

// Attach registers a connection for private replies.
func (s *PollService) Attach(sub Subscriber) {
	s.broadcaster.Attach(sub)
}

// Join subscribes the connection to the course channel. If a question is
// open the connection is sent it right away.
func (s *PollService) Join(ctx context.Context, courseID string, sub Subscriber) (Role, error) {
	instructor, err := s.roster.IsInstructor(ctx, sub.ParticipantID(), courseID)
	if err != nil {
		return "", storageErr("check instructor", err)
	}
	role := RoleInstructor
	if !instructor {
		enrolled, err := s.roster.IsEnrolled(ctx, sub.ParticipantID(), courseID)
		if err != nil {
			return "", storageErr("check enrollment", err)
		}
		if !enrolled {
			return "", domain.ErrNotEnrolled
		}
		role = RoleParticipant
	}

	// Subscribing under the course lock keeps the catch-up event ahead of
	// any close that follows it.
	err = s.registry.WithCurrentQuestion(ctx, courseID, func(q *domain.Question) {
		s.broadcaster.Subscribe(courseID, sub, instructor)
		if q != nil {
			sub.Send(domain.QuestionOpenedEvent(*q))
		}
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("joined course", "course", courseID, "user", sub.ParticipantID(), "role", role)
	return role, nil
}

// Leave drops the connection from every course it joined.
func (s *PollService) Leave(sub Subscriber) {
	s.broadcaster.Unsubscribe(sub)
}

// CreateQuestion stores a draft question for the course.
func (s *PollService) CreateQuestion(ctx context.Context, userID string, nq domain.NewQuestion) (string, error) {
	nq, err := nq.Normalize()
	if err != nil {
		return "", err
	}
	if err := s.requireInstructor(ctx, userID, nq.CourseID); err != nil {
		return "", err
	}
	id, err := s.questions.CreateQuestion(ctx, nq)
	if err != nil {
		return "", storageErr("create question", err)
	}
	s.logger.Info("question created", "course", nq.CourseID, "question", id)
	return id, nil
}

// PublishQuestion creates a question and opens it in one instructor action.
func (s *PollService) PublishQuestion(ctx context.Context, userID string, nq domain.NewQuestion) (domain.Question, error) {
	id, err := s.CreateQuestion(ctx, userID, nq)
	if err != nil {
		return domain.Question{}, err
	}
	return s.registry.OpenQuestion(ctx, nq.CourseID, id)
}

// OpenQuestion opens an existing question. The registry commits the new
// state before the opened event is published.
func (s *PollService) OpenQuestion(ctx context.Context, userID, courseID, questionID string) (domain.Question, error) {
	if err := s.requireInstructor(ctx, userID, courseID); err != nil {
		return domain.Question{}, err
	}
	return s.registry.OpenQuestion(ctx, courseID, questionID)
}

// CloseQuestion closes the question; closing twice is not an error.
func (s *PollService) CloseQuestion(ctx context.Context, userID, courseID, questionID string) error {
	if err := s.requireInstructor(ctx, userID, courseID); err != nil {
		return err
	}
	_, err := s.registry.CloseQuestion(ctx, courseID, questionID)
	return err
}

// SubmitAnswer grades a participant's answer; the result is also replied privately.
func (s *PollService) SubmitAnswer(ctx context.Context, participantID, questionID, label string) (domain.AnswerResult, error) {
	return s.grader.Submit(ctx, domain.Submission{
		ParticipantID: participantID,
		QuestionID:    questionID,
		Label:         label,
	})
}

func (s *PollService) requireInstructor(ctx context.Context, userID, courseID string) error {
	ok, err := s.roster.IsInstructor(ctx, userID, courseID)
	if err != nil {
		return storageErr("check instructor", err)
	}
	if !ok {
		return domain.ErrNotAuthorized
	}
	return nil
}
