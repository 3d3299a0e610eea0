package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxGrade is awarded for a correct answer; any other valid answer scores zero.
const MaxGrade = 100

const (
	minChoices = 2
	maxChoices = 10
)

// LifecycleState is the open/closed lifecycle of a question.
type LifecycleState string

const (
	StateDraft  LifecycleState = "draft"
	StateOpen   LifecycleState = "open"
	StateClosed LifecycleState = "closed"
)

// Course is the roster view of a class: one instructor and the enrolled participants.
type Course struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	InstructorID string   `json:"instructorId" yaml:"instructor"`
	Participants []string `json:"participants" yaml:"participants"`
}

// Choice is one labeled answer option.
type Choice struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is a multiple-choice question belonging to exactly one course.
type Question struct {
	ID           string         `json:"id"`
	CourseID     string         `json:"courseId"`
	Prompt       string         `json:"prompt"`
	Choices      []Choice       `json:"choices"`
	CorrectLabel string         `json:"correctLabel"`
	State        LifecycleState `json:"state"`
	OpenSeq      uint64         `json:"openSeq"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// HasChoice reports whether label names one of the question's choices.
func (q Question) HasChoice(label string) bool {
	for _, c := range q.Choices {
		if c.Label == label {
			return true
		}
	}
	return false
}

// Grade scores a label against the correct one.
func (q Question) Grade(label string) (bool, int) {
	if label == q.CorrectLabel {
		return true, MaxGrade
	}
	return false, 0
}

// Response is one participant's graded answer to one question. Never mutated after creation.
type Response struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Label         string    `json:"label"`
	Correct       bool      `json:"correct"`
	Grade         int       `json:"grade"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// CourseLifecycle is what storage knows about a course's questions: the ones
// left Open, lowest open sequence first, and the highest sequence ever stamped.
type CourseLifecycle struct {
	Open    []Question
	LastSeq uint64
}

// Submission is an incoming answer from a participant.
type Submission struct {
	ParticipantID string
	QuestionID    string
	Label         string
}

// NewQuestion is the instructor's input for creating a question.
type NewQuestion struct {
	CourseID     string
	Prompt       string
	Choices      []Choice
	CorrectLabel string
}

// NormalizeLabel canonicalizes a choice label ("b " -> "B").
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// Normalize validates the question content and returns it with canonical labels.
func (n NewQuestion) Normalize() (NewQuestion, error) {
	out := NewQuestion{
		CourseID:     strings.TrimSpace(n.CourseID),
		Prompt:       strings.TrimSpace(n.Prompt),
		CorrectLabel: NormalizeLabel(n.CorrectLabel),
	}
	if out.CourseID == "" {
		return out, fmt.Errorf("%w: course is required", ErrInvalidQuestion)
	}
	if out.Prompt == "" {
		return out, fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	if len(n.Choices) < minChoices || len(n.Choices) > maxChoices {
		return out, fmt.Errorf("%w: need between %d and %d choices", ErrInvalidQuestion, minChoices, maxChoices)
	}

	seen := make(map[string]struct{}, len(n.Choices))
	out.Choices = make([]Choice, 0, len(n.Choices))
	for _, c := range n.Choices {
		label := NormalizeLabel(c.Label)
		if label == "" {
			return out, fmt.Errorf("%w: empty choice label", ErrInvalidQuestion)
		}
		if _, dup := seen[label]; dup {
			return out, fmt.Errorf("%w: duplicate choice label %q", ErrInvalidQuestion, label)
		}
		seen[label] = struct{}{}
		out.Choices = append(out.Choices, Choice{Label: label, Text: strings.TrimSpace(c.Text)})
	}
	if _, ok := seen[out.CorrectLabel]; !ok {
		return out, fmt.Errorf("%w: correct label %q is not a choice", ErrInvalidQuestion, out.CorrectLabel)
	}
	return out, nil
}
