// Package inmemdb is a process-local datastore implementing the repositories.
// It enforces the same unique, foreign key and cascade rules as the SQL schema
// and maintains the rankings the way the database trigger does.
package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
)

type (
	pairKey [2]string

	rankingRow struct {
		userID       string
		totalPoints  int
		testsTaken   int
		rankPosition int
		updatedAt    time.Time
	}

	// DB holds every table behind a single lock, so that cascades are atomic.
	DB struct {
		mu sync.RWMutex

		users       map[string]*user.User
		sessions    map[string]user.Session
		admins      map[string]time.Time
		profiles    map[string]user.Profile
		subjects    map[string]subject.Subject
		lessons     map[string]lesson.Lesson
		userLessons map[pairKey]lesson.UserLesson // {user_id, lesson_id}
		tests       map[string]quiz.Test
		questions   map[string]quiz.Question
		answers     map[pairKey]quiz.Answer // {user_id, question_id}
		rankings    map[string]*rankingRow
	}
)

func Open() *DB {
	db := &DB{}
	db.reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

func (db *DB) reset() {
	db.users = make(map[string]*user.User)
	db.sessions = make(map[string]user.Session)
	db.admins = make(map[string]time.Time)
	db.profiles = make(map[string]user.Profile)
	db.subjects = make(map[string]subject.Subject)
	db.lessons = make(map[string]lesson.Lesson)
	db.userLessons = make(map[pairKey]lesson.UserLesson)
	db.tests = make(map[string]quiz.Test)
	db.questions = make(map[string]quiz.Question)
	db.answers = make(map[pairKey]quiz.Answer)
	db.rankings = make(map[string]*rankingRow)
}

func newID() string { return uuid.New().String() }

// Cascades. Callers hold the write lock.

func (db *DB) deleteUser(id string) {
	delete(db.users, id)
	delete(db.admins, id)
	delete(db.profiles, id)
	for sid, s := range db.sessions {
		if s.UserID == id {
			delete(db.sessions, sid)
		}
	}
	for k := range db.userLessons {
		if k[0] == id {
			delete(db.userLessons, k)
		}
	}
	for k := range db.answers {
		if k[0] == id {
			delete(db.answers, k)
		}
	}
	db.refreshRankings()
}

func (db *DB) deleteSubject(id string) {
	delete(db.subjects, id)
	for lid, l := range db.lessons {
		if l.SubjectID == id {
			db.deleteLesson(lid)
		}
	}
	for tid, t := range db.tests {
		if t.SubjectID == id {
			db.deleteTest(tid)
		}
	}
}

func (db *DB) deleteLesson(id string) {
	delete(db.lessons, id)
	for k := range db.userLessons {
		if k[1] == id {
			delete(db.userLessons, k)
		}
	}
}

func (db *DB) deleteTest(id string) {
	delete(db.tests, id)
	for qid, q := range db.questions {
		if q.TestID == id {
			db.deleteQuestion(qid)
		}
	}
}

func (db *DB) deleteQuestion(id string) {
	delete(db.questions, id)
	var deleted bool
	for k := range db.answers {
		if k[1] == id {
			delete(db.answers, k)
			deleted = true
		}
	}
	if deleted {
		db.refreshRankings()
	}
}

// refreshRankings recomputes every user's total points, tests taken and rank position
// (shared on ties, with gaps after them). Callers hold the write lock.
func (db *DB) refreshRankings() {
	type agg struct {
		points int
		tests  map[string]bool
	}
	aggs := make(map[string]*agg)
	for k, a := range db.answers {
		q, ok := db.questions[k[1]]
		if !ok {
			continue
		}
		g, ok := aggs[a.UserID]
		if !ok {
			g = &agg{tests: make(map[string]bool)}
			aggs[a.UserID] = g
		}
		g.points += a.PointsEarned
		g.tests[q.TestID] = true
	}

	now := time.Now().UTC()
	rows := make(map[string]*rankingRow, len(aggs))
	for uid, g := range aggs {
		rows[uid] = &rankingRow{userID: uid, totalPoints: g.points, testsTaken: len(g.tests), updatedAt: now}
	}

	sorted := make([]*rankingRow, 0, len(rows))
	for _, r := range rows {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].totalPoints > sorted[j].totalPoints })
	for i, r := range sorted {
		if i > 0 && r.totalPoints == sorted[i-1].totalPoints {
			r.rankPosition = sorted[i-1].rankPosition
		} else {
			r.rankPosition = i + 1
		}
	}
	db.rankings = rows
}
