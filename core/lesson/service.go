package lesson

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("lesson")
	ErrSubjectNotFound = errors.New("subject not found")
	ErrNoPDF           = core.NewValidationError(errors.New("this lesson has no PDF"))
)

type (
	Repository interface {
		// ListLessons returns the lessons of a subject (all subjects if subjectID is empty), newest first.
		ListLessons(ctx context.Context, subjectID string) ([]WithSubject, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		UpdateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error

		ListUserLessons(ctx context.Context, userID string) ([]UserLesson, error)
		// UpsertUserLesson creates or replaces the (user_id, lesson_id) marker.
		UpsertUserLesson(ctx context.Context, ul UserLesson) (UserLesson, error)
	}

	Service interface {
		List(ctx context.Context, filter QueryFilter) ([]WithSubject, error)
		ListForStudent(ctx context.Context, userID string, filter QueryFilter) ([]StudentLesson, error)
		Get(ctx context.Context, id string) (Lesson, error)
		Create(ctx context.Context, nl NewLesson) (Lesson, error)
		Update(ctx context.Context, id string, ul UpdateLesson) (Lesson, error)
		Delete(ctx context.Context, id string) error
		// RemoveSubjectPDFs removes the stored PDFs of a subject's lessons, leaving the rows.
		RemoveSubjectPDFs(ctx context.Context, subjectID string) error
		UploadPDF(ctx context.Context, id string, r io.Reader, size int64, contentType string) (Lesson, error)
		RecordDownload(ctx context.Context, userID, lessonID string) (UserLesson, error)
	}

	service struct {
		repo       Repository
		store      core.ObjectStore
		validate   *validator.Validate
		logger     core.Logger
		maxPDFSize int64
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, store core.ObjectStore, validate *validator.Validate, logger core.Logger, maxPDFSize int64) Service {
	if maxPDFSize <= 0 {
		maxPDFSize = DefaultMaxPDFSize
	}
	return &service{
		repo:       repo,
		store:      store,
		validate:   validate,
		logger:     logger,
		maxPDFSize: maxPDFSize,
	}
}

func (svc *service) List(ctx context.Context, filter QueryFilter) ([]WithSubject, error) {
	filter.Clean()
	return svc.repo.ListLessons(ctx, filter.SubjectID)
}

func (svc *service) ListForStudent(ctx context.Context, userID string, filter QueryFilter) ([]StudentLesson, error) {
	lessons, err := svc.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	marks, err := svc.repo.ListUserLessons(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing downloads")
	}

	versions := make(map[string]int, len(marks))
	for _, m := range marks {
		if m.Downloaded {
			versions[m.LessonID] = m.DownloadedVersion
		}
	}
	res := make([]StudentLesson, 0, len(lessons))
	for _, l := range lessons {
		sl := StudentLesson{WithSubject: l}
		if v, ok := versions[l.ID]; ok {
			v := v
			sl.DownloadedVersion = &v
		}
		res = append(res, sl)
	}
	return res, nil
}

func (svc *service) Get(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *service) Create(ctx context.Context, nl NewLesson) (Lesson, error) {
	nl.Clean()
	if err := svc.validate.Struct(nl); err != nil {
		return Lesson{}, err
	}
	lsn, err := svc.repo.CreateLesson(ctx, Lesson{
		SubjectID: nl.SubjectID,
		Title:     nl.Title,
		CreatedAt: core.NowFunc().UTC(),
	})
	return lsn, svc.trapForeignKeyViolation(err, "creating lesson")
}

func (svc *service) Update(ctx context.Context, id string, ul UpdateLesson) (Lesson, error) {
	ul.Clean()
	if err := svc.validate.Struct(ul); err != nil {
		return Lesson{}, err
	}
	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	lsn.SubjectID = ul.SubjectID
	lsn.Title = ul.Title
	lsn, err = svc.repo.UpdateLesson(ctx, lsn)
	return lsn, svc.trapForeignKeyViolation(err, "updating lesson")
}

// Delete removes the lesson's stored PDF, then the lesson itself.
func (svc *service) Delete(ctx context.Context, id string) error {
	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return err
	}
	svc.removePDF(ctx, lsn)
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *service) RemoveSubjectPDFs(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return ErrSubjectNotFound
	}
	lessons, err := svc.repo.ListLessons(ctx, subjectID)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	for _, lsn := range lessons {
		svc.removePDF(ctx, lsn.Lesson)
	}
	return nil
}

// UploadPDF replaces the lesson's PDF and bumps its version so that students' cached copies become outdated.
func (svc *service) UploadPDF(ctx context.Context, id string, r io.Reader, size int64, contentType string) (Lesson, error) {
	switch {
	case contentType != PDFContentType:
		return Lesson{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "only PDF files are allowed"})
	case size <= 0:
		return Lesson{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "file is empty"})
	case size > svc.maxPDFSize:
		return Lesson{}, core.NewValidationError(nil, core.FieldError{
			Field: "file",
			Error: fmt.Sprintf("file is too large (max %d MiB)", svc.maxPDFSize/(1024*1024)),
		})
	}

	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	svc.removePDF(ctx, lsn)

	key := lsn.ID + "/" + strconv.FormatInt(core.NowFunc().UnixNano()/int64(time.Millisecond), 10) + ".pdf"
	if err = svc.store.Put(ctx, key, r, size, contentType); err != nil {
		return Lesson{}, errors.Wrap(err, "storing PDF")
	}

	url := svc.store.PublicURL(key)
	lsn.PDFURL = &url
	lsn.Version++
	if lsn, err = svc.repo.UpdateLesson(ctx, lsn); err != nil {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return lsn, nil
}

// removePDF deletes the stored object of the lesson's PDF, if any. Failures are only logged.
func (svc *service) removePDF(ctx context.Context, lsn Lesson) {
	if !lsn.HasPDF() {
		return
	}
	key := svc.store.KeyFromURL(*lsn.PDFURL)
	if key == "" {
		return
	}
	if err := svc.store.Delete(ctx, key); err != nil {
		svc.logger.Warn(fmt.Sprintf("removing PDF %q of lesson %s: %v", key, lsn.ID, err), err)
	}
}

// RecordDownload marks the lesson as downloaded by the user at its current version.
func (svc *service) RecordDownload(ctx context.Context, userID, lessonID string) (UserLesson, error) {
	lsn, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return UserLesson{}, err
	}
	if !lsn.HasPDF() {
		return UserLesson{}, ErrNoPDF
	}
	return svc.repo.UpsertUserLesson(ctx, UserLesson{
		UserID:            userID,
		LessonID:          lsn.ID,
		Downloaded:        true,
		DownloadedVersion: lsn.Version,
		UpdatedAt:         core.NowFunc().UTC(),
	})
}

func (svc *service) trapForeignKeyViolation(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == core.ErrForeignKeyViolation {
		return core.NewValidationError(ErrSubjectNotFound, core.FieldError{Field: "subject_id", Error: ErrSubjectNotFound.Error()})
	}
	if core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}
