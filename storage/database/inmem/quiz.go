package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db}
}

// Tests

func (repo *quizRepository) ListTests(_ context.Context, subjectID string) ([]quiz.TestSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int)
	for _, q := range repo.db.questions {
		counts[q.TestID]++
	}
	tests := make([]quiz.TestSummary, 0)
	for _, t := range repo.db.tests {
		if subjectID != "" && t.SubjectID != subjectID {
			continue
		}
		tests = append(tests, quiz.TestSummary{
			Test:          t,
			SubjectName:   repo.db.subjects[t.SubjectID].Name,
			QuestionCount: counts[t.ID],
		})
	}
	sort.SliceStable(tests, func(i, j int) bool {
		if tests[i].CreatedAt.Equal(tests[j].CreatedAt) {
			return tests[i].ID < tests[j].ID
		}
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
	return tests, nil
}

func (repo *quizRepository) GetTest(_ context.Context, id string) (quiz.Test, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tests[id]; ok {
		return t, nil
	}
	return quiz.Test{}, quiz.ErrNotFound
}

func checkTestTimes(t quiz.Test) error {
	if !t.EndTime.After(t.StartTime) {
		return errors.New("new row for relation \"tests\" violates check constraint \"tests_end_after_start\"")
	}
	return nil
}

func (repo *quizRepository) CreateTest(_ context.Context, t quiz.Test) (quiz.Test, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[t.SubjectID]; !ok {
		return quiz.Test{}, errors.Wrap(core.ErrForeignKeyViolation, "tests.subject_id")
	}
	if err := checkTestTimes(t); err != nil {
		return quiz.Test{}, err
	}
	t.ID = newID()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	repo.db.tests[t.ID] = t
	return t, nil
}

func (repo *quizRepository) UpdateTest(_ context.Context, t quiz.Test) (quiz.Test, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.tests[t.ID]
	if !ok {
		return quiz.Test{}, quiz.ErrNotFound
	}
	if _, ok = repo.db.subjects[t.SubjectID]; !ok {
		return quiz.Test{}, errors.Wrap(core.ErrForeignKeyViolation, "tests.subject_id")
	}
	if err := checkTestTimes(t); err != nil {
		return quiz.Test{}, err
	}
	orig.SubjectID = t.SubjectID
	orig.Name = t.Name
	orig.StartTime = t.StartTime
	orig.EndTime = t.EndTime
	repo.db.tests[t.ID] = orig
	return orig, nil
}

func (repo *quizRepository) DeleteTest(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tests[id]; !ok {
		return quiz.ErrNotFound
	}
	repo.db.deleteTest(id)
	return nil
}

// Questions

func (repo *quizRepository) ListQuestions(_ context.Context, testID string) ([]quiz.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	questions := make([]quiz.Question, 0)
	for _, q := range repo.db.questions {
		if q.TestID == testID {
			questions = append(questions, q)
		}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].SortOrder != questions[j].SortOrder {
			return questions[i].SortOrder < questions[j].SortOrder
		}
		if !questions[i].CreatedAt.Equal(questions[j].CreatedAt) {
			return questions[i].CreatedAt.Before(questions[j].CreatedAt)
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}

func (repo *quizRepository) GetQuestion(_ context.Context, id string) (quiz.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return q, nil
	}
	return quiz.Question{}, quiz.ErrQuestionNotFound
}

func (repo *quizRepository) MaxSortOrder(_ context.Context, testID string) (int, bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var maxOrder int
	var found bool
	for _, q := range repo.db.questions {
		if q.TestID != testID {
			continue
		}
		if !found || q.SortOrder > maxOrder {
			maxOrder = q.SortOrder
			found = true
		}
	}
	return maxOrder, found, nil
}

func (repo *quizRepository) CreateQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tests[q.TestID]; !ok {
		return quiz.Question{}, errors.Wrap(core.ErrForeignKeyViolation, "test_questions.test_id")
	}
	q.ID = newID()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	repo.db.questions[q.ID] = q
	return q, nil
}

func (repo *quizRepository) UpdateQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.questions[q.ID]
	if !ok {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	orig.Text = q.Text
	orig.Options = q.Options
	orig.CorrectOption = q.CorrectOption
	orig.Points = q.Points
	repo.db.questions[q.ID] = orig
	return orig, nil
}

func (repo *quizRepository) DeleteQuestion(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.questions[id]; !ok {
		return quiz.ErrQuestionNotFound
	}
	repo.db.deleteQuestion(id)
	return nil
}

// Answers

// CreateAnswers stores all answers or none of them.
func (repo *quizRepository) CreateAnswers(_ context.Context, answers []quiz.Answer) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[pairKey]bool, len(answers))
	for _, a := range answers {
		key := pairKey{a.UserID, a.QuestionID}
		if _, ok := repo.db.answers[key]; ok || seen[key] {
			return errors.Wrap(core.ErrUniqueViolation, "user_tests_user_question_key")
		}
		if _, ok := repo.db.users[a.UserID]; !ok {
			return errors.Wrap(core.ErrForeignKeyViolation, "user_tests.user_id")
		}
		if _, ok := repo.db.questions[a.QuestionID]; !ok {
			return errors.Wrap(core.ErrForeignKeyViolation, "user_tests.question_id")
		}
		seen[key] = true
	}

	now := time.Now().UTC()
	for _, a := range answers {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		repo.db.answers[pairKey{a.UserID, a.QuestionID}] = a
	}
	repo.db.refreshRankings()
	return nil
}

func (repo *quizRepository) ListAnsweredTestIDs(_ context.Context, userID string) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	set := make(map[string]bool)
	for k := range repo.db.answers {
		if k[0] != userID {
			continue
		}
		if q, ok := repo.db.questions[k[1]]; ok {
			set[q.TestID] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
