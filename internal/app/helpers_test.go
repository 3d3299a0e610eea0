package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/memory"
)

const waitTimeout = 2 * time.Second

var connSeq atomic.Int64

// recorder is an app.Subscriber that records what it is sent.
type recorder struct {
	id     string
	user   string
	events chan domain.Event

	once   sync.Once
	closed chan struct{}
}

func newRecorder(id, user string) *recorder {
	return newRecorderWithBuffer(id, user, 64)
}

// newRecorderWithBuffer with buffer 0 never accepts an event.
func newRecorderWithBuffer(id, user string, buffer int) *recorder {
	return &recorder{id: id, user: user, events: make(chan domain.Event, buffer), closed: make(chan struct{})}
}

func (r *recorder) ID() string            { return r.id }
func (r *recorder) ParticipantID() string { return r.user }

func (r *recorder) Send(event domain.Event) bool {
	select {
	case <-r.closed:
		return false
	default:
	}
	select {
	case r.events <- event:
		return true
	default:
		return false
	}
}

func (r *recorder) Close() {
	r.once.Do(func() { close(r.closed) })
}

func (r *recorder) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *recorder) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(waitTimeout):
		t.Fatalf("%s: timed out waiting for event", r.id)
		return domain.Event{}
	}
}

// nextOf skips events of other types.
func (r *recorder) nextOf(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-r.events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %s", r.id, typ)
			return domain.Event{}
		}
	}
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("%s: expected no event, got %s %+v", r.id, e.Type, e.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func answerOf(t *testing.T, e domain.Event) domain.AnswerResult {
	t.Helper()
	if e.Type != domain.EventAnswerResult {
		t.Fatalf("expected answerResult, got %s", e.Type)
	}
	return e.Payload.(domain.AnswerResult)
}

type fixture struct {
	store       *memory.QuestionStore
	channels    *memory.ChannelStore
	broadcaster *app.Broadcaster
	registry    *app.SessionRegistry
	grader      *app.Grader
	service     *app.PollService
}

type fixtureConfig struct {
	policy    app.OpenPolicy
	responses app.ResponseStore
	tally     bool
}

func newFixture(t *testing.T, opts ...func(*fixtureConfig)) *fixture {
	t.Helper()
	cfg := fixtureConfig{policy: app.OpenPolicySupersede}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewQuestionStore()
	var responses app.ResponseStore = store
	if cfg.responses != nil {
		responses = cfg.responses
	}
	roster := memory.NewStaticRoster([]domain.Course{
		{ID: "7", Name: "Physics", InstructorID: "prof", Participants: []string{"s1", "s2", "s3"}},
		{ID: "8", Name: "Chemistry", InstructorID: "prof8", Participants: []string{"t1"}},
	})
	channels := memory.NewChannelStore(0)
	broadcaster := app.NewBroadcaster(channels, logger)
	registry := app.NewSessionRegistry(store, broadcaster, cfg.policy, logger)
	var graderOpts []app.GraderOption
	if cfg.tally {
		graderOpts = append(graderOpts, app.WithTally(broadcaster))
	}
	grader := app.NewGrader(store, responses, roster, registry, broadcaster, logger, graderOpts...)
	service := app.NewPollService(store, roster, registry, broadcaster, grader, logger)
	return &fixture{
		store:       store,
		channels:    channels,
		broadcaster: broadcaster,
		registry:    registry,
		grader:      grader,
		service:     service,
	}
}

// draft creates an ABCD question with correct answer B.
func (f *fixture) draft(t *testing.T, courseID, instructor string) string {
	t.Helper()
	id, err := f.service.CreateQuestion(context.Background(), instructor, domain.NewQuestion{
		CourseID: courseID,
		Prompt:   "Which one?",
		Choices: []domain.Choice{
			{Label: "A", Text: "first"},
			{Label: "B", Text: "second"},
			{Label: "C", Text: "third"},
			{Label: "D", Text: "fourth"},
		},
		CorrectLabel: "B",
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return id
}

func (f *fixture) join(t *testing.T, courseID, user string) *recorder {
	t.Helper()
	r := newRecorder(fmt.Sprintf("%s-%s-%d", user, courseID, connSeq.Add(1)), user)
	if _, err := f.service.Join(context.Background(), courseID, r); err != nil {
		t.Fatalf("join %s as %s: %v", courseID, user, err)
	}
	return r
}

// failingResponses simulates an unavailable response store.
type failingResponses struct{}

func (failingResponses) RecordResponse(context.Context, domain.Response) error {
	return fmt.Errorf("connection refused")
}

func (failingResponses) Tally(context.Context, string) (map[string]int, error) {
	return nil, fmt.Errorf("connection refused")
}
