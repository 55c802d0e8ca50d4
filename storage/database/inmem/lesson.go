package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
)

type lessonRepository struct {
	db *DB
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *DB) lesson.Repository {
	return &lessonRepository{db: db}
}

func (repo *lessonRepository) ListLessons(_ context.Context, subjectID string) ([]lesson.WithSubject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lessons := make([]lesson.WithSubject, 0)
	for _, l := range repo.db.lessons {
		if subjectID != "" && l.SubjectID != subjectID {
			continue
		}
		lessons = append(lessons, lesson.WithSubject{Lesson: l, SubjectName: repo.db.subjects[l.SubjectID].Name})
	}
	sort.SliceStable(lessons, func(i, j int) bool {
		if lessons[i].CreatedAt.Equal(lessons[j].CreatedAt) {
			return lessons[i].ID < lessons[j].ID
		}
		return lessons[i].CreatedAt.After(lessons[j].CreatedAt)
	})
	return lessons, nil
}

func (repo *lessonRepository) GetLesson(_ context.Context, id string) (lesson.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return l, nil
	}
	return lesson.Lesson{}, lesson.ErrNotFound
}

func (repo *lessonRepository) CreateLesson(_ context.Context, lsn lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[lsn.SubjectID]; !ok {
		return lesson.Lesson{}, errors.Wrap(core.ErrForeignKeyViolation, "lessons.subject_id")
	}
	lsn.ID = newID()
	if lsn.CreatedAt.IsZero() {
		lsn.CreatedAt = time.Now().UTC()
	}
	repo.db.lessons[lsn.ID] = lsn
	return lsn, nil
}

func (repo *lessonRepository) UpdateLesson(_ context.Context, lsn lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.lessons[lsn.ID]
	if !ok {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	if _, ok = repo.db.subjects[lsn.SubjectID]; !ok {
		return lesson.Lesson{}, errors.Wrap(core.ErrForeignKeyViolation, "lessons.subject_id")
	}
	orig.SubjectID = lsn.SubjectID
	orig.Title = lsn.Title
	orig.PDFURL = lsn.PDFURL
	orig.Version = lsn.Version
	repo.db.lessons[lsn.ID] = orig
	return orig, nil
}

func (repo *lessonRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return lesson.ErrNotFound
	}
	repo.db.deleteLesson(id)
	return nil
}

func (repo *lessonRepository) ListUserLessons(_ context.Context, userID string) ([]lesson.UserLesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	uls := make([]lesson.UserLesson, 0)
	for k, ul := range repo.db.userLessons {
		if k[0] == userID {
			uls = append(uls, ul)
		}
	}
	sort.Slice(uls, func(i, j int) bool { return uls[i].LessonID < uls[j].LessonID })
	return uls, nil
}

func (repo *lessonRepository) UpsertUserLesson(_ context.Context, ul lesson.UserLesson) (lesson.UserLesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[ul.UserID]; !ok {
		return lesson.UserLesson{}, errors.Wrap(core.ErrForeignKeyViolation, "user_lessons.user_id")
	}
	if _, ok := repo.db.lessons[ul.LessonID]; !ok {
		return lesson.UserLesson{}, errors.Wrap(core.ErrForeignKeyViolation, "user_lessons.lesson_id")
	}
	if ul.UpdatedAt.IsZero() {
		ul.UpdatedAt = time.Now().UTC()
	}
	repo.db.userLessons[pairKey{ul.UserID, ul.LessonID}] = ul
	return ul, nil
}
