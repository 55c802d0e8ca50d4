package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/maktab/core/ranking"
)

type rankingRepository struct {
	db *DB
}

var _ ranking.Repository = (*rankingRepository)(nil) // interface compliance check

func NewRankingRepository(db *DB) ranking.Repository {
	return &rankingRepository{db: db}
}

// entry must be called with the lock held.
func (repo *rankingRepository) entry(r *rankingRow) ranking.Entry {
	pos := r.rankPosition
	prof := repo.db.profiles[r.userID]
	return ranking.Entry{
		UserID:       r.userID,
		TotalPoints:  r.totalPoints,
		TestsTaken:   r.testsTaken,
		RankPosition: &pos,
		FullName:     prof.FullName,
		AvatarURL:    prof.AvatarURL,
	}
}

func (repo *rankingRepository) Rankings(_ context.Context, limit int) ([]ranking.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]*rankingRow, 0, len(repo.db.rankings))
	for _, r := range repo.db.rankings {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].rankPosition != rows[j].rankPosition {
			return rows[i].rankPosition < rows[j].rankPosition
		}
		return rows[i].userID < rows[j].userID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	entries := make([]ranking.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, repo.entry(r))
	}
	return entries, nil
}

func (repo *rankingRepository) MyRanking(_ context.Context, userID string) (*ranking.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	r, ok := repo.db.rankings[userID]
	if !ok {
		return nil, nil
	}
	e := repo.entry(r)
	return &e, nil
}

func (repo *rankingRepository) UserTestResults(_ context.Context, userID string, limit int) ([]ranking.TestResult, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byTest := make(map[string]*ranking.TestResult)
	for k, a := range repo.db.answers {
		if k[0] != userID {
			continue
		}
		q, ok := repo.db.questions[k[1]]
		if !ok {
			continue
		}
		res, ok := byTest[q.TestID]
		if !ok {
			t := repo.db.tests[q.TestID]
			res = &ranking.TestResult{
				TestID:      t.ID,
				TestName:    t.Name,
				SubjectName: repo.db.subjects[t.SubjectID].Name,
			}
			byTest[q.TestID] = res
		}
		res.EarnedPoints += a.PointsEarned
		if a.PointsEarned > 0 {
			res.CorrectAnswers++
		}
		if a.CreatedAt.After(res.CompletedAt) {
			res.CompletedAt = a.CreatedAt
		}
	}
	for _, q := range repo.db.questions {
		if res, ok := byTest[q.TestID]; ok {
			res.TotalPoints += q.Points
			res.TotalQuestions++
		}
	}

	results := make([]ranking.TestResult, 0, len(byTest))
	for _, res := range byTest {
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CompletedAt.Equal(results[j].CompletedAt) {
			return results[i].CompletedAt.After(results[j].CompletedAt)
		}
		return results[i].TestID < results[j].TestID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
