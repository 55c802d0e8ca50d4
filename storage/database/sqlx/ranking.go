package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/ranking"
)

type (
	rankingRow struct {
		UserID       string      `db:"user_id"`
		TotalPoints  int         `db:"total_points"`
		TestsTaken   int         `db:"tests_taken"`
		RankPosition null.Int    `db:"rank_position"`
		FullName     null.String `db:"full_name"`
		AvatarURL    null.String `db:"avatar_url"`
	}

	testResultRow struct {
		TestID         string    `db:"test_id"`
		TestName       string    `db:"test_name"`
		SubjectName    string    `db:"subject_name"`
		TotalPoints    int       `db:"total_points"`
		EarnedPoints   int       `db:"earned_points"`
		TotalQuestions int       `db:"total_questions"`
		CorrectAnswers int       `db:"correct_answers"`
		CompletedAt    time.Time `db:"completed_at"`
	}

	// rankingRepository reads the aggregations maintained by the refresh_rankings trigger.
	rankingRepository struct {
		baseRepository
	}
)

var _ ranking.Repository = (*rankingRepository)(nil) // interface compliance check

func NewRankingRepository(db *sqlx.DB, conf *core.Config) ranking.Repository {
	return &rankingRepository{baseRepository: newBaseRepository(db, conf)}
}

func (r rankingRow) entry() ranking.Entry {
	return ranking.Entry{
		UserID:       r.UserID,
		TotalPoints:  r.TotalPoints,
		TestsTaken:   r.TestsTaken,
		RankPosition: r.RankPosition.Ptr(),
		FullName:     r.FullName.String,
		AvatarURL:    r.AvatarURL.String,
	}
}

func (repo *rankingRepository) Rankings(ctx context.Context, limit int) ([]ranking.Entry, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []rankingRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM get_rankings_with_profiles($1)`, limit); err != nil {
		return nil, trapErr(err, nil, "selecting rankings")
	}
	entries := make([]ranking.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (repo *rankingRepository) MyRanking(ctx context.Context, userID string) (*ranking.Entry, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []rankingRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM get_my_ranking($1)`, userID); err != nil {
		return nil, trapErr(err, nil, "selecting ranking")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e := rows[0].entry()
	return &e, nil
}

func (repo *rankingRepository) UserTestResults(ctx context.Context, userID string, limit int) ([]ranking.TestResult, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []ranking.TestResult{}, nil
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []testResultRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM get_user_test_results($1, $2)`, userID, limit); err != nil {
		return nil, trapErr(err, nil, "selecting test results")
	}
	results := make([]ranking.TestResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, ranking.TestResult{
			TestID:         r.TestID,
			TestName:       r.TestName,
			SubjectName:    r.SubjectName,
			TotalPoints:    r.TotalPoints,
			EarnedPoints:   r.EarnedPoints,
			TotalQuestions: r.TotalQuestions,
			CorrectAnswers: r.CorrectAnswers,
			CompletedAt:    r.CompletedAt.UTC(),
		})
	}
	return results, nil
}
