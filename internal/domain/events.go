package domain

// EventType names a server-to-client event.
type EventType string

const (
	EventQuestionOpened EventType = "questionOpened"
	EventQuestionClosed EventType = "questionClosed"
	EventAnswerResult   EventType = "answerResult"
	EventQuestionTally  EventType = "questionTally"
)

// Event is one outbound message. InstructorOnly events are only fanned out to
// instructor subscriptions of the course.
type Event struct {
	Type           EventType `json:"type"`
	Payload        any       `json:"payload"`
	InstructorOnly bool      `json:"-"`
}

// QuestionOpened is broadcast when a question opens. It never carries the correct label.
type QuestionOpened struct {
	QuestionID string   `json:"questionId"`
	CourseID   string   `json:"courseId"`
	Prompt     string   `json:"prompt"`
	Choices    []Choice `json:"choices"`
	Sequence   uint64   `json:"sequence"`
}

// QuestionClosed is broadcast when a question closes.
type QuestionClosed struct {
	QuestionID string `json:"questionId"`
	CourseID   string `json:"courseId"`
	Sequence   uint64 `json:"sequence"`
}

// Result values of an AnswerResult.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// AnswerResult is the private grading reply to a submitter.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Result     string `json:"result"`
	Grade      *int   `json:"grade,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// QuestionTally summarizes live answer counts for instructors.
type QuestionTally struct {
	QuestionID string         `json:"questionId"`
	Counts     map[string]int `json:"counts"`
	Responses  int            `json:"responses"`
}

func QuestionOpenedEvent(q Question) Event {
	choices := make([]Choice, len(q.Choices))
	copy(choices, q.Choices)
	return Event{Type: EventQuestionOpened, Payload: QuestionOpened{
		QuestionID: q.ID,
		CourseID:   q.CourseID,
		Prompt:     q.Prompt,
		Choices:    choices,
		Sequence:   q.OpenSeq,
	}}
}

func QuestionClosedEvent(q Question) Event {
	return Event{Type: EventQuestionClosed, Payload: QuestionClosed{
		QuestionID: q.ID,
		CourseID:   q.CourseID,
		Sequence:   q.OpenSeq,
	}}
}

func AnswerResultEvent(r AnswerResult) Event {
	return Event{Type: EventAnswerResult, Payload: r}
}

func QuestionTallyEvent(questionID string, counts map[string]int) Event {
	total := 0
	for _, n := range counts {
		total += n
	}
	return Event{
		Type:           EventQuestionTally,
		Payload:        QuestionTally{QuestionID: questionID, Counts: counts, Responses: total},
		InstructorOnly: true,
	}
}

// SuccessResult builds a successful AnswerResult.
func SuccessResult(questionID string, grade int) AnswerResult {
	return AnswerResult{QuestionID: questionID, Result: ResultSuccess, Grade: &grade}
}

// FailedResult builds a failed AnswerResult carrying the reason code for err.
func FailedResult(questionID string, err error) AnswerResult {
	return AnswerResult{QuestionID: questionID, Result: ResultFail, Reason: Reason(err)}
}
