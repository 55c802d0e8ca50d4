package quiz

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	ErrIncomplete   = core.NewValidationError(errors.New("please answer every question before submitting"))
	ErrAlreadyTaken = core.NewConflictError("you have already taken this test")
	errUnknownLabel = errors.New("unknown option label")
)

// AnswerWriter writes a batch of answers all at once: either every row is stored or none is.
type AnswerWriter interface {
	CreateAnswers(ctx context.Context, answers []Answer) error
}

// Gate performs the one-time write of a test attempt.
type Gate struct {
	writer AnswerWriter
}

func NewGate(writer AnswerWriter) *Gate {
	return &Gate{writer: writer}
}

// Submit grades answers (question id -> label) and stores them for userID in a single batch.
// An incomplete set is rejected before anything is written. A second attempt fails with ErrAlreadyTaken;
// any other write failure is returned as is and must not be retried blindly.
func (g *Gate) Submit(ctx context.Context, userID string, questions []Question, answers map[string]string) (Result, error) {
	if len(questions) == 0 {
		return Result{}, ErrNoQuestions
	}
	for _, q := range questions {
		label, ok := answers[q.ID]
		if !ok || label == "" {
			return Result{}, ErrIncomplete
		}
		if !isOptionLabel(label) {
			return Result{}, core.NewValidationError(errUnknownLabel, core.FieldError{Field: "answers", Error: errUnknownLabel.Error()})
		}
	}

	now := core.NowFunc().UTC()
	rows := make([]Answer, 0, len(questions))
	for _, q := range questions {
		ans := Answer{
			UserID:         userID,
			QuestionID:     q.ID,
			SelectedOption: answers[q.ID],
			CreatedAt:      now,
		}
		if ans.SelectedOption == q.CorrectOption {
			ans.PointsEarned = q.Points
		}
		rows = append(rows, ans)
	}

	if err := g.writer.CreateAnswers(ctx, rows); err != nil {
		if isUniqueViolation(err) {
			return Result{}, ErrAlreadyTaken
		}
		return Result{}, err
	}
	return Score(questions, answers), nil
}

func isUniqueViolation(err error) bool {
	return errors.Cause(err) == core.ErrUniqueViolation
}

func isOptionLabel(label string) bool {
	for _, l := range OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}
