package quiz

import (
	"encoding/json"
	"math"
	"time"

	"github.com/trezcool/maktab/core"
)

// Test statuses, derived from the current time.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// PassPercentage is the score from which an attempt is presented as passed.
const PassPercentage = 60

var OptionLabels = []string{"A", "B", "C", "D"}

type Test struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (t Test) Status(now time.Time) string {
	switch {
	case now.Before(t.StartTime):
		return StatusPending
	case now.After(t.EndTime):
		return StatusClosed
	default:
		return StatusActive
	}
}

// TestSummary is a Test joined with its subject name and question count.
type TestSummary struct {
	Test
	SubjectName   string `json:"subject_name"`
	QuestionCount int    `json:"question_count"`
	Status        string `json:"status"`
}

// StudentTest is what a student sees of a test.
type StudentTest struct {
	TestSummary
	Taken bool `json:"taken"`
}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type Question struct {
	ID            string    `json:"id"`
	TestID        string    `json:"test_id"`
	Text          string    `json:"question"`
	Options       []Option  `json:"options"`
	CorrectOption string    `json:"correct_option"`
	Points        int       `json:"points"`
	SortOrder     int       `json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

// Student returns the question as shown to students, without its correct option.
func (q Question) Student() StudentQuestion {
	return StudentQuestion{
		ID:        q.ID,
		TestID:    q.TestID,
		Text:      q.Text,
		Options:   q.Options,
		Points:    q.Points,
		SortOrder: q.SortOrder,
	}
}

type StudentQuestion struct {
	ID        string   `json:"id"`
	TestID    string   `json:"test_id"`
	Text      string   `json:"question"`
	Options   []Option `json:"options"`
	Points    int      `json:"points"`
	SortOrder int      `json:"sort_order"`
}

// Answer is the write-once record of a user's choice for a question.
type Answer struct {
	UserID         string    `json:"user_id"`
	QuestionID     string    `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	PointsEarned   int       `json:"points_earned"`
	CreatedAt      time.Time `json:"created_at"`
}

type Result struct {
	CorrectCount   int `json:"correct_count"`
	TotalQuestions int `json:"total_questions"`
	PointsEarned   int `json:"points_earned"`
	MaxPoints      int `json:"max_points"`
}

// Percentage is the rounded share of correct answers.
func (r Result) Percentage() int {
	if r.TotalQuestions == 0 {
		return 0
	}
	return int(math.Round(100 * float64(r.CorrectCount) / float64(r.TotalQuestions)))
}

func (r Result) Passed() bool { return r.Percentage() >= PassPercentage }

func (r Result) MarshalJSON() ([]byte, error) {
	type result Result
	return json.Marshal(struct {
		result
		Percentage int  `json:"percentage"`
		Passed     bool `json:"passed"`
	}{result(r), r.Percentage(), r.Passed()})
}

// Score grades answers (question id -> label) against the questions.
func Score(questions []Question, answers map[string]string) Result {
	var res Result
	res.TotalQuestions = len(questions)
	for _, q := range questions {
		res.MaxPoints += q.Points
		if answers[q.ID] == q.CorrectOption {
			res.CorrectCount++
			res.PointsEarned += q.Points
		}
	}
	return res
}

// NewTest contains information needed to create (or update) a Test.
type NewTest struct {
	SubjectID string    `json:"subject_id" validate:"required,uuid"`
	Name      string    `json:"name" validate:"required,min=2,max=200"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

func (nt *NewTest) Clean() {
	nt.SubjectID = core.CleanString(nt.SubjectID, true /* lower */)
	nt.Name = core.CleanString(nt.Name)
	nt.StartTime = nt.StartTime.UTC()
	nt.EndTime = nt.EndTime.UTC()
}

type UpdateTest = NewTest

// NewQuestion is the question form: one text field per option.
type NewQuestion struct {
	Text          string `json:"question" validate:"required,min=5,max=500"`
	OptionA       string `json:"option_a" validate:"required,notblank"`
	OptionB       string `json:"option_b" validate:"required,notblank"`
	OptionC       string `json:"option_c" validate:"required,notblank"`
	OptionD       string `json:"option_d" validate:"required,notblank"`
	CorrectOption string `json:"correct_option" validate:"required,option_label"`
	Points        int    `json:"points" validate:"required,min=1,max=5"`
}

func (nq *NewQuestion) Clean() {
	nq.Text = core.CleanString(nq.Text)
	nq.OptionA = core.CleanString(nq.OptionA)
	nq.OptionB = core.CleanString(nq.OptionB)
	nq.OptionC = core.CleanString(nq.OptionC)
	nq.OptionD = core.CleanString(nq.OptionD)
	nq.CorrectOption = core.CleanString(nq.CorrectOption)
}

func (nq NewQuestion) options() []Option {
	return []Option{
		{Label: "A", Text: nq.OptionA},
		{Label: "B", Text: nq.OptionB},
		{Label: "C", Text: nq.OptionC},
		{Label: "D", Text: nq.OptionD},
	}
}

type UpdateQuestion = NewQuestion

type AnswerInput struct {
	QuestionID     string `json:"question_id" validate:"required"`
	SelectedOption string `json:"selected_option" validate:"required,option_label"`
}

// Submission is the batch of answers sent for one test attempt.
type Submission struct {
	Answers []AnswerInput `json:"answers" validate:"required,dive"`
}

func (s Submission) AnswerMap() map[string]string {
	m := make(map[string]string, len(s.Answers))
	for _, a := range s.Answers {
		m[a.QuestionID] = a.SelectedOption
	}
	return m
}

// NewSubmission builds a Submission from answers (question id -> label), ordered like questions.
func NewSubmission(questions []StudentQuestion, answers map[string]string) Submission {
	s := Submission{Answers: make([]AnswerInput, 0, len(answers))}
	for _, q := range questions {
		if label, ok := answers[q.ID]; ok {
			s.Answers = append(s.Answers, AnswerInput{QuestionID: q.ID, SelectedOption: label})
		}
	}
	return s
}

type QueryFilter struct {
	SubjectID string `query:"subject_id"`
}

func (qf *QueryFilter) Clean() {
	qf.SubjectID = core.CleanString(qf.SubjectID, true /* lower */)
}
