package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/subject"
)

type subjectRepository struct {
	baseRepository
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *sqlx.DB, conf *core.Config) subject.Repository {
	return &subjectRepository{baseRepository: newBaseRepository(db, conf)}
}

type subjectRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r subjectRow) subject() subject.Subject {
	return subject.Subject{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

// ListSubjects expects ordering fields to have been validated by the service.
func (repo *subjectRepository) ListSubjects(ctx context.Context, ordering ...core.DBOrdering) ([]subject.Subject, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderBy = append(orderBy, ord.String())
	}
	orderBy = append(orderBy, "id ASC")

	var rows []subjectRow
	q := `SELECT id, name, created_at FROM subjects ORDER BY ` + strings.Join(orderBy, ", ")
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, trapErr(err, nil, "selecting subjects")
	}
	subjects := make([]subject.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.subject())
	}
	return subjects, nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, id string) (subject.Subject, error) {
	if _, err := uuid.Parse(id); err != nil {
		return subject.Subject{}, subject.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row subjectRow
	if err := repo.db.GetContext(ctx, &row, `SELECT id, name, created_at FROM subjects WHERE id = $1`, id); err != nil {
		return subject.Subject{}, trapErr(err, subject.ErrNotFound, "selecting subject")
	}
	return row.subject(), nil
}

func (repo *subjectRepository) CreateSubject(ctx context.Context, subj subject.Subject) (subject.Subject, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	subj.ID = uuid.New().String()
	if subj.CreatedAt.IsZero() {
		subj.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, created_at) VALUES ($1, $2, $3)`,
		subj.ID, subj.Name, subj.CreatedAt); err != nil {
		return subject.Subject{}, trapErr(err, nil, "inserting subject")
	}
	return subj, nil
}

func (repo *subjectRepository) UpdateSubject(ctx context.Context, subj subject.Subject) (subject.Subject, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row subjectRow
	q := `UPDATE subjects SET name = $2 WHERE id = $1 RETURNING id, name, created_at`
	if err := repo.db.GetContext(ctx, &row, q, subj.ID, subj.Name); err != nil {
		return subject.Subject{}, trapErr(err, subject.ErrNotFound, "updating subject")
	}
	return row.subject(), nil
}

func (repo *subjectRepository) DeleteSubject(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return subject.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting subject")
	}
	return checkAffected(res, subject.ErrNotFound)
}
