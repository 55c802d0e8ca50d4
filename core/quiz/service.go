package quiz

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("test")
	ErrQuestionNotFound = core.NewNotFoundError("question")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrTestNotStarted   = core.NewConflictError("this test has not started yet")
	ErrTestClosed       = core.NewConflictError("this test is closed")
)

type (
	Repository interface {
		AnswerWriter

		// ListTests returns the tests of a subject (all subjects if subjectID is empty), newest first.
		ListTests(ctx context.Context, subjectID string) ([]TestSummary, error)
		GetTest(ctx context.Context, id string) (Test, error)
		CreateTest(ctx context.Context, t Test) (Test, error)
		UpdateTest(ctx context.Context, t Test) (Test, error)
		// DeleteTest deletes the test along with its questions and their answers.
		DeleteTest(ctx context.Context, id string) error

		// ListQuestions returns the questions of a test by sort order, then creation date.
		ListQuestions(ctx context.Context, testID string) ([]Question, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		// MaxSortOrder returns the highest sort order of the test's questions; ok is false if it has none.
		MaxSortOrder(ctx context.Context, testID string) (maxOrder int, ok bool, err error)
		CreateQuestion(ctx context.Context, q Question) (Question, error)
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		DeleteQuestion(ctx context.Context, id string) error

		// ListAnsweredTestIDs returns the ids of the tests the user has answered.
		ListAnsweredTestIDs(ctx context.Context, userID string) ([]string, error)
	}

	Service interface {
		ListTests(ctx context.Context, filter QueryFilter) ([]TestSummary, error)
		ListTestsForStudent(ctx context.Context, userID string, filter QueryFilter) ([]StudentTest, error)
		GetTest(ctx context.Context, id string) (Test, error)
		CreateTest(ctx context.Context, nt NewTest) (Test, error)
		UpdateTest(ctx context.Context, id string, ut UpdateTest) (Test, error)
		DeleteTest(ctx context.Context, id string) error

		ListQuestions(ctx context.Context, testID string) ([]Question, error)
		CreateQuestion(ctx context.Context, testID string, nq NewQuestion) (Question, error)
		UpdateQuestion(ctx context.Context, id string, uq UpdateQuestion) (Question, error)
		DeleteQuestion(ctx context.Context, id string) error

		StudentQuestions(ctx context.Context, testID string) ([]StudentQuestion, error)
		SubmitAttempt(ctx context.Context, userID, testID string, answers map[string]string) (Result, error)
		// Submitter binds SubmitAttempt to a user and a test.
		Submitter(userID, testID string) Submitter
	}

	service struct {
		repo     Repository
		gate     *Gate
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{
		repo:     repo,
		gate:     NewGate(repo),
		validate: validate,
	}
}

// Tests

func (svc *service) ListTests(ctx context.Context, filter QueryFilter) ([]TestSummary, error) {
	filter.Clean()
	tests, err := svc.repo.ListTests(ctx, filter.SubjectID)
	if err != nil {
		return nil, err
	}
	now := core.NowFunc()
	for i := range tests {
		tests[i].Status = tests[i].Test.Status(now)
	}
	return tests, nil
}

func (svc *service) ListTestsForStudent(ctx context.Context, userID string, filter QueryFilter) ([]StudentTest, error) {
	tests, err := svc.ListTests(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing tests")
	}
	ids, err := svc.repo.ListAnsweredTestIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing answered tests")
	}

	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		taken[id] = true
	}
	res := make([]StudentTest, 0, len(tests))
	for _, t := range tests {
		res = append(res, StudentTest{TestSummary: t, Taken: taken[t.ID]})
	}
	return res, nil
}

func (svc *service) GetTest(ctx context.Context, id string) (Test, error) {
	return svc.repo.GetTest(ctx, id)
}

func (svc *service) CreateTest(ctx context.Context, nt NewTest) (Test, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Test{}, err
	}
	t, err := svc.repo.CreateTest(ctx, Test{
		SubjectID: nt.SubjectID,
		Name:      nt.Name,
		StartTime: nt.StartTime,
		EndTime:   nt.EndTime,
		CreatedAt: core.NowFunc().UTC(),
	})
	return t, svc.trapForeignKeyViolation(err, "creating test")
}

func (svc *service) UpdateTest(ctx context.Context, id string, ut UpdateTest) (Test, error) {
	ut.Clean()
	if err := svc.validate.Struct(ut); err != nil {
		return Test{}, err
	}
	t, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	t.SubjectID = ut.SubjectID
	t.Name = ut.Name
	t.StartTime = ut.StartTime
	t.EndTime = ut.EndTime
	t, err = svc.repo.UpdateTest(ctx, t)
	return t, svc.trapForeignKeyViolation(err, "updating test")
}

func (svc *service) DeleteTest(ctx context.Context, id string) error {
	return svc.repo.DeleteTest(ctx, id)
}

// Questions

func (svc *service) ListQuestions(ctx context.Context, testID string) ([]Question, error) {
	if _, err := svc.repo.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	return svc.repo.ListQuestions(ctx, testID)
}

// CreateQuestion appends a question to the test: its sort order is the current max + 1 (0 for the first one).
func (svc *service) CreateQuestion(ctx context.Context, testID string, nq NewQuestion) (Question, error) {
	nq.Clean()
	if err := svc.validate.Struct(nq); err != nil {
		return Question{}, err
	}
	if _, err := svc.repo.GetTest(ctx, testID); err != nil {
		return Question{}, err
	}

	maxOrder, ok, err := svc.repo.MaxSortOrder(ctx, testID)
	if err != nil {
		return Question{}, errors.Wrap(err, "finding max sort order")
	}
	sortOrder := 0
	if ok {
		sortOrder = maxOrder + 1
	}

	q, err := svc.repo.CreateQuestion(ctx, Question{
		TestID:        testID,
		Text:          nq.Text,
		Options:       nq.options(),
		CorrectOption: nq.CorrectOption,
		Points:        nq.Points,
		SortOrder:     sortOrder,
		CreatedAt:     core.NowFunc().UTC(),
	})
	if err != nil {
		return Question{}, errors.Wrap(err, "creating question")
	}
	return q, nil
}

// UpdateQuestion replaces the content of a question. Its sort order is kept.
func (svc *service) UpdateQuestion(ctx context.Context, id string, uq UpdateQuestion) (Question, error) {
	uq.Clean()
	if err := svc.validate.Struct(uq); err != nil {
		return Question{}, err
	}
	q, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	q.Text = uq.Text
	q.Options = uq.options()
	q.CorrectOption = uq.CorrectOption
	q.Points = uq.Points
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *service) DeleteQuestion(ctx context.Context, id string) error {
	return svc.repo.DeleteQuestion(ctx, id)
}

// Test taking

func (svc *service) activeTest(ctx context.Context, testID string) (Test, error) {
	t, err := svc.repo.GetTest(ctx, testID)
	if err != nil {
		return Test{}, err
	}
	switch t.Status(core.NowFunc()) {
	case StatusPending:
		return Test{}, ErrTestNotStarted
	case StatusClosed:
		return Test{}, ErrTestClosed
	}
	return t, nil
}

// StudentQuestions returns the questions of an active test without their correct options.
func (svc *service) StudentQuestions(ctx context.Context, testID string) ([]StudentQuestion, error) {
	if _, err := svc.activeTest(ctx, testID); err != nil {
		return nil, err
	}
	questions, err := svc.repo.ListQuestions(ctx, testID)
	if err != nil {
		return nil, errors.Wrap(err, "listing questions")
	}
	res := make([]StudentQuestion, 0, len(questions))
	for _, q := range questions {
		res = append(res, q.Student())
	}
	return res, nil
}

// SubmitAttempt grades and stores a user's answers to an active test.
func (svc *service) SubmitAttempt(ctx context.Context, userID, testID string, answers map[string]string) (Result, error) {
	if _, err := svc.activeTest(ctx, testID); err != nil {
		return Result{}, err
	}
	questions, err := svc.repo.ListQuestions(ctx, testID)
	if err != nil {
		return Result{}, errors.Wrap(err, "listing questions")
	}
	return svc.gate.Submit(ctx, userID, questions, answers)
}

func (svc *service) Submitter(userID, testID string) Submitter {
	return SubmitterFunc(func(ctx context.Context, answers map[string]string) (Result, error) {
		return svc.SubmitAttempt(ctx, userID, testID, answers)
	})
}

func (svc *service) trapForeignKeyViolation(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == core.ErrForeignKeyViolation {
		return core.NewValidationError(ErrSubjectNotFound, core.FieldError{Field: "subject_id", Error: ErrSubjectNotFound.Error()})
	}
	if core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}
