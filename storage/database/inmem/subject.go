package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/subject"
)

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *DB) subject.Repository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) checkUnique(subj subject.Subject) error {
	for _, s := range repo.db.subjects {
		if s.ID != subj.ID && s.Name == subj.Name {
			return errors.Wrap(core.ErrUniqueViolation, "subjects.name")
		}
	}
	return nil
}

func (repo *subjectRepository) ListSubjects(_ context.Context, ordering ...core.DBOrdering) ([]subject.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make([]subject.Subject, 0, len(repo.db.subjects))
	for _, s := range repo.db.subjects {
		subjects = append(subjects, s)
	}
	sort.SliceStable(subjects, func(i, j int) bool {
		for _, ord := range ordering {
			var less, greater bool
			switch ord.Field {
			case "name":
				less, greater = subjects[i].Name < subjects[j].Name, subjects[i].Name > subjects[j].Name
			case "created_at":
				less, greater = subjects[i].CreatedAt.Before(subjects[j].CreatedAt), subjects[i].CreatedAt.After(subjects[j].CreatedAt)
			}
			if less || greater {
				return less == ord.Ascending
			}
		}
		return subjects[i].ID < subjects[j].ID
	})
	return subjects, nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, id string) (subject.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return s, nil
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) CreateSubject(_ context.Context, subj subject.Subject) (subject.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	subj.ID = newID()
	if err := repo.checkUnique(subj); err != nil {
		return subject.Subject{}, err
	}
	if subj.CreatedAt.IsZero() {
		subj.CreatedAt = time.Now().UTC()
	}
	repo.db.subjects[subj.ID] = subj
	return subj, nil
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, subj subject.Subject) (subject.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.subjects[subj.ID]
	if !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	if err := repo.checkUnique(subj); err != nil {
		return subject.Subject{}, err
	}
	orig.Name = subj.Name
	repo.db.subjects[subj.ID] = orig
	return orig, nil
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return subject.ErrNotFound
	}
	repo.db.deleteSubject(id)
	return nil
}
