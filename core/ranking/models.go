package ranking

import "time"

const (
	DefaultLimit        = 20
	AdminLimit          = 100
	DefaultResultsLimit = 5
)

// Entry is a student's row in the rankings, joined with their profile.
type Entry struct {
	UserID       string `json:"user_id"`
	TotalPoints  int    `json:"total_points"`
	TestsTaken   int    `json:"tests_taken"`
	RankPosition *int   `json:"rank_position"`
	FullName     string `json:"full_name"`
	AvatarURL    string `json:"avatar_url"`
	Email        string `json:"email,omitempty"` // admin listing only
}

// TestResult sums up one test taken by a student.
type TestResult struct {
	TestID         string    `json:"test_id"`
	TestName       string    `json:"test_name"`
	SubjectName    string    `json:"subject_name"`
	TotalPoints    int       `json:"total_points"`
	EarnedPoints   int       `json:"earned_points"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	CompletedAt    time.Time `json:"completed_at"`
}
