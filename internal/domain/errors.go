package domain

import "errors"

var (
	// ErrUnknownQuestion is returned when a question id does not resolve to a question.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrQuestionNotOpen covers submissions to questions that were never opened, are closed, or were superseded.
	ErrQuestionNotOpen = errors.New("question is not open")
	// ErrInvalidChoice indicates the submitted label is not one of the question's choices.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrDuplicateSubmission indicates the participant already answered the question.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrAlreadyOpen is returned when another question is open for the course and the open policy rejects.
	ErrAlreadyOpen = errors.New("another question is already open for this course")
	// ErrQuestionClosed is returned when opening a question that has already been closed.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrNotAuthorized is returned when a non-instructor attempts lifecycle control.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotEnrolled is returned when a user is not a participant of the course.
	ErrNotEnrolled = errors.New("not enrolled in course")
	// ErrInvalidQuestion indicates question content failed validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrStorageUnavailable wraps any persistence failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Reason maps an error to the reason code sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(err, ErrQuestionNotOpen):
		return "question_not_open"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrAlreadyOpen):
		return "already_open"
	case errors.Is(err, ErrQuestionClosed):
		return "question_closed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrInvalidQuestion):
		return "invalid_question"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// IsDomain reports whether err carries one of the conditions above rather
// than an unclassified failure.
func IsDomain(err error) bool {
	switch Reason(err) {
	case "", "internal":
		return false
	}
	return true
}
