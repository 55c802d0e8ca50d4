package quiz

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	ErrNoQuestions       = core.NewConflictError("this test has no questions")
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrNotLastQuestion   = errors.New("answers can only be submitted from the last question")
)

// State of a test Session.
type State int

const (
	StateAnswering State = iota
	StateSubmitting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAnswering:
		return "answering"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Submitter sends a complete answer set (question id -> label) and returns the graded result.
type Submitter interface {
	Submit(ctx context.Context, answers map[string]string) (Result, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, answers map[string]string) (Result, error)

func (f SubmitterFunc) Submit(ctx context.Context, answers map[string]string) (Result, error) {
	return f(ctx, answers)
}

// Session drives a student through the questions of one test, one at a time,
// and submits the answers once every question has one.
//
//	Answering(i) --Select/Next/Prev--> Answering(i')
//	Answering(n-1) --Submit--> Submitting --ok--> Completed(result)
//	                                      --err--> Answering(n-1)
type Session struct {
	mu        sync.Mutex
	questions []StudentQuestion
	answers   map[string]string
	index     int
	state     State
	result    Result
	submitter Submitter
}

// NewSession starts a session on the first question. It fails with ErrNoQuestions on an empty list.
func NewSession(questions []StudentQuestion, submitter Submitter) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	qs := make([]StudentQuestion, len(questions))
	copy(qs, questions)
	return &Session{
		questions: qs,
		answers:   make(map[string]string, len(qs)),
		state:     StateAnswering,
		submitter: submitter,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the position of the current question.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) Len() int { return len(s.questions) }

func (s *Session) Current() StudentQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[s.index]
}

func (s *Session) IsLast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index == len(s.questions)-1
}

// Answer returns the label recorded for the question, or "".
func (s *Session) Answer(questionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[questionID]
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		cp[k] = v
	}
	return cp
}

func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Result returns the graded result once the session is completed.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateCompleted
}

// Select records label as the answer to the current question. It does not move to the next one.
func (s *Session) Select(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	if !isOptionLabel(label) {
		return errUnknownLabel
	}
	s.answers[s.questions[s.index].ID] = label
	return nil
}

// Next moves to the next question. It is a no-op on the last one.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	if s.index < len(s.questions)-1 {
		s.index++
	}
	return nil
}

// Prev moves to the previous question. It is a no-op on the first one.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	if s.index > 0 {
		s.index--
	}
	return nil
}

func (s *Session) complete() bool {
	for _, q := range s.questions {
		if s.answers[q.ID] == "" {
			return false
		}
	}
	return true
}

// Submit sends the answers once, from the last question and only if every question is answered.
// On failure the session goes back to the last question so that the student may try again.
func (s *Session) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state != StateAnswering {
		s.mu.Unlock()
		return Result{}, ErrInvalidTransition
	}
	if s.index != len(s.questions)-1 {
		s.mu.Unlock()
		return Result{}, ErrNotLastQuestion
	}
	if !s.complete() {
		s.mu.Unlock()
		return Result{}, ErrIncomplete
	}
	s.state = StateSubmitting
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.mu.Unlock()

	res, err := s.submitter.Submit(ctx, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateAnswering
		return Result{}, err
	}
	s.state = StateCompleted
	s.result = res
	return res, nil
}
