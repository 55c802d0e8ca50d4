package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/quiz"
)

type (
	testRow struct {
		ID            string      `db:"id"`
		SubjectID     string      `db:"subject_id"`
		Name          string      `db:"name"`
		StartTime     time.Time   `db:"start_time"`
		EndTime       time.Time   `db:"end_time"`
		CreatedAt     time.Time   `db:"created_at"`
		SubjectName   null.String `db:"subject_name"`
		QuestionCount int         `db:"question_count"`
	}

	questionRow struct {
		ID            string         `db:"id"`
		TestID        string         `db:"test_id"`
		Text          string         `db:"question"`
		Options       types.JSONText `db:"options"`
		CorrectOption string         `db:"correct_option"`
		Points        int            `db:"points"`
		SortOrder     int            `db:"sort_order"`
		CreatedAt     time.Time      `db:"created_at"`
	}

	answerRow struct {
		ID             string    `db:"id"`
		UserID         string    `db:"user_id"`
		QuestionID     string    `db:"question_id"`
		SelectedOption string    `db:"selected_option"`
		PointsEarned   int       `db:"points_earned"`
		CreatedAt      time.Time `db:"created_at"`
	}

	quizRepository struct {
		baseRepository
	}
)

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB, conf *core.Config) quiz.Repository {
	return &quizRepository{baseRepository: newBaseRepository(db, conf)}
}

func (r testRow) test() quiz.Test {
	return quiz.Test{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Name:      r.Name,
		StartTime: r.StartTime.UTC(),
		EndTime:   r.EndTime.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r questionRow) question() (quiz.Question, error) {
	var opts []quiz.Option
	if err := r.Options.Unmarshal(&opts); err != nil {
		return quiz.Question{}, errors.Wrap(err, "decoding options")
	}
	return quiz.Question{
		ID:            r.ID,
		TestID:        r.TestID,
		Text:          r.Text,
		Options:       opts,
		CorrectOption: r.CorrectOption,
		Points:        r.Points,
		SortOrder:     r.SortOrder,
		CreatedAt:     r.CreatedAt.UTC(),
	}, nil
}

// Tests

const testColumns = "t.id, t.subject_id, t.name, t.start_time, t.end_time, t.created_at"

func (repo *quizRepository) ListTests(ctx context.Context, subjectID string) ([]quiz.TestSummary, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT ` + testColumns + `, s.name AS subject_name,
			(SELECT COUNT(*) FROM test_questions q WHERE q.test_id = t.id) AS question_count
		FROM tests t
		JOIN subjects s ON s.id = t.subject_id`
	args := []interface{}{}
	if subjectID != "" {
		if _, err := uuid.Parse(subjectID); err != nil {
			return []quiz.TestSummary{}, nil
		}
		q += ` WHERE t.subject_id = $1`
		args = append(args, subjectID)
	}
	q += ` ORDER BY t.created_at DESC, t.id`

	var rows []testRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, trapErr(err, nil, "selecting tests")
	}
	tests := make([]quiz.TestSummary, 0, len(rows))
	for _, r := range rows {
		tests = append(tests, quiz.TestSummary{
			Test:          r.test(),
			SubjectName:   r.SubjectName.String,
			QuestionCount: r.QuestionCount,
		})
	}
	return tests, nil
}

func (repo *quizRepository) GetTest(ctx context.Context, id string) (quiz.Test, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Test{}, quiz.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row testRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id); err != nil {
		return quiz.Test{}, trapErr(err, quiz.ErrNotFound, "selecting test")
	}
	return row.test(), nil
}

func (repo *quizRepository) CreateTest(ctx context.Context, t quiz.Test) (quiz.Test, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	t.ID = uuid.New().String()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO tests (id, subject_id, name, start_time, end_time, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.SubjectID, t.Name, t.StartTime, t.EndTime, t.CreatedAt); err != nil {
		return quiz.Test{}, trapErr(err, nil, "inserting test")
	}
	return t, nil
}

func (repo *quizRepository) UpdateTest(ctx context.Context, t quiz.Test) (quiz.Test, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row testRow
	q := `UPDATE tests t
		SET subject_id = $2, name = $3, start_time = $4, end_time = $5
		WHERE t.id = $1
		RETURNING ` + testColumns
	if err := repo.db.GetContext(ctx, &row, q, t.ID, t.SubjectID, t.Name, t.StartTime, t.EndTime); err != nil {
		return quiz.Test{}, trapErr(err, quiz.ErrNotFound, "updating test")
	}
	return row.test(), nil
}

func (repo *quizRepository) DeleteTest(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM tests WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting test")
	}
	return checkAffected(res, quiz.ErrNotFound)
}

// Questions

const questionColumns = "id, test_id, question, options, correct_option, points, sort_order, created_at"

func (repo *quizRepository) ListQuestions(ctx context.Context, testID string) ([]quiz.Question, error) {
	if _, err := uuid.Parse(testID); err != nil {
		return []quiz.Question{}, nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []questionRow
	q := `SELECT ` + questionColumns + ` FROM test_questions WHERE test_id = $1 ORDER BY sort_order, created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q, testID); err != nil {
		return nil, trapErr(err, nil, "selecting questions")
	}
	questions := make([]quiz.Question, 0, len(rows))
	for _, r := range rows {
		qst, err := r.question()
		if err != nil {
			return nil, err
		}
		questions = append(questions, qst)
	}
	return questions, nil
}

func (repo *quizRepository) GetQuestion(ctx context.Context, id string) (quiz.Question, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row questionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+questionColumns+` FROM test_questions WHERE id = $1`, id); err != nil {
		return quiz.Question{}, trapErr(err, quiz.ErrQuestionNotFound, "selecting question")
	}
	return row.question()
}

func (repo *quizRepository) MaxSortOrder(ctx context.Context, testID string) (int, bool, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var maxOrder null.Int
	if err := repo.db.GetContext(ctx, &maxOrder, `SELECT MAX(sort_order) FROM test_questions WHERE test_id = $1`, testID); err != nil {
		return 0, false, trapErr(err, nil, "selecting max sort order")
	}
	return maxOrder.Int, maxOrder.Valid, nil
}

func (repo *quizRepository) CreateQuestion(ctx context.Context, qst quiz.Question) (quiz.Question, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	opts, err := json.Marshal(qst.Options)
	if err != nil {
		return quiz.Question{}, errors.Wrap(err, "encoding options")
	}
	qst.ID = uuid.New().String()
	if qst.CreatedAt.IsZero() {
		qst.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO test_questions (` + questionColumns + `)
		VALUES (:id, :test_id, :question, :options, :correct_option, :points, :sort_order, :created_at)`
	row := questionRow{
		ID:            qst.ID,
		TestID:        qst.TestID,
		Text:          qst.Text,
		Options:       types.JSONText(opts),
		CorrectOption: qst.CorrectOption,
		Points:        qst.Points,
		SortOrder:     qst.SortOrder,
		CreatedAt:     qst.CreatedAt,
	}
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return quiz.Question{}, trapErr(err, nil, "inserting question")
	}
	return qst, nil
}

func (repo *quizRepository) UpdateQuestion(ctx context.Context, qst quiz.Question) (quiz.Question, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	opts, err := json.Marshal(qst.Options)
	if err != nil {
		return quiz.Question{}, errors.Wrap(err, "encoding options")
	}
	var row questionRow
	q := `UPDATE test_questions
		SET question = $2, options = $3, correct_option = $4, points = $5
		WHERE id = $1
		RETURNING ` + questionColumns
	err = repo.db.GetContext(ctx, &row, q, qst.ID, qst.Text, types.JSONText(opts), qst.CorrectOption, qst.Points)
	if err != nil {
		return quiz.Question{}, trapErr(err, quiz.ErrQuestionNotFound, "updating question")
	}
	return row.question()
}

func (repo *quizRepository) DeleteQuestion(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.ErrQuestionNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM test_questions WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting question")
	}
	return checkAffected(res, quiz.ErrQuestionNotFound)
}

// Answers

// CreateAnswers inserts every answer in a single statement, so that either all or none are stored.
// The rankings trigger fires once for the whole batch.
func (repo *quizRepository) CreateAnswers(ctx context.Context, answers []quiz.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	now := time.Now().UTC()
	rows := make([]answerRow, 0, len(answers))
	for _, a := range answers {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		rows = append(rows, answerRow{
			ID:             uuid.New().String(),
			UserID:         a.UserID,
			QuestionID:     a.QuestionID,
			SelectedOption: a.SelectedOption,
			PointsEarned:   a.PointsEarned,
			CreatedAt:      a.CreatedAt,
		})
	}
	q := `INSERT INTO user_tests (id, user_id, question_id, selected_option, points_earned, created_at)
		VALUES (:id, :user_id, :question_id, :selected_option, :points_earned, :created_at)`
	_, err := repo.db.NamedExecContext(ctx, q, rows)
	return trapErr(err, nil, "inserting answers")
}

func (repo *quizRepository) ListAnsweredTestIDs(ctx context.Context, userID string) ([]string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []string{}, nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	ids := []string{}
	q := `SELECT DISTINCT q.test_id
		FROM user_tests ut
		JOIN test_questions q ON q.id = ut.question_id
		WHERE ut.user_id = $1
		ORDER BY q.test_id`
	if err := repo.db.SelectContext(ctx, &ids, q, userID); err != nil {
		return nil, trapErr(err, nil, "selecting answered tests")
	}
	return ids, nil
}
