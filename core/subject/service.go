package subject

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("subject")
	ErrNameExists   = errors.New("a subject with this name already exists")
	errBadOrderings = errors.New("invalid ordering")
)

type (
	Repository interface {
		ListSubjects(ctx context.Context, ordering ...core.DBOrdering) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		CreateSubject(ctx context.Context, subj Subject) (Subject, error)
		UpdateSubject(ctx context.Context, subj Subject) (Subject, error)
		// DeleteSubject deletes the subject along with its lessons and tests.
		DeleteSubject(ctx context.Context, id string) error
	}

	// LessonFiles removes the stored files of a subject's lessons.
	LessonFiles interface {
		RemoveSubjectPDFs(ctx context.Context, subjectID string) error
	}

	Service interface {
		List(ctx context.Context, ordering ...core.DBOrdering) ([]Subject, error)
		Get(ctx context.Context, id string) (Subject, error)
		Create(ctx context.Context, ns NewSubject) (Subject, error)
		Update(ctx context.Context, id string, us UpdateSubject) (Subject, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo     Repository
		lessons  LessonFiles
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, lessons LessonFiles, validate *validator.Validate) Service {
	return &service{repo: repo, lessons: lessons, validate: validate}
}

// List returns all subjects, by creation date unless another ordering is given.
func (svc *service) List(ctx context.Context, ordering ...core.DBOrdering) ([]Subject, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{OrderByCreatedAt}
	}
	for _, ord := range ordering {
		if !orderingFields[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: errBadOrderings.Error()})
		}
	}
	return svc.repo.ListSubjects(ctx, ordering...)
}

func (svc *service) Get(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Subject{}, err
	}
	subj, err := svc.repo.CreateSubject(ctx, Subject{Name: ns.Name, CreatedAt: core.NowFunc().UTC()})
	return subj, svc.trapUniqueViolation(err, "creating subject")
}

func (svc *service) Update(ctx context.Context, id string, us UpdateSubject) (Subject, error) {
	us.Clean()
	if err := svc.validate.Struct(us); err != nil {
		return Subject{}, err
	}
	subj, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	subj.Name = us.Name
	subj, err = svc.repo.UpdateSubject(ctx, subj)
	return subj, svc.trapUniqueViolation(err, "updating subject")
}

// Delete removes the lessons' PDFs from the object store, then the subject and everything under it.
func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetSubject(ctx, id); err != nil {
		return err
	}
	if err := svc.lessons.RemoveSubjectPDFs(ctx, id); err != nil {
		return errors.Wrap(err, "removing lesson PDFs")
	}
	return svc.repo.DeleteSubject(ctx, id)
}

// trapUniqueViolation rewrites the datastore's duplicate-name failure into a field error.
func (svc *service) trapUniqueViolation(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == core.ErrUniqueViolation {
		return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	}
	if core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}
