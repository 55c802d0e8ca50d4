package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
)

type (
	lessonRow struct {
		ID          string      `db:"id"`
		SubjectID   string      `db:"subject_id"`
		Title       string      `db:"title"`
		PDFURL      null.String `db:"pdf_url"`
		Version     int         `db:"version"`
		CreatedAt   time.Time   `db:"created_at"`
		SubjectName null.String `db:"subject_name"`
	}

	userLessonRow struct {
		UserID            string    `db:"user_id"`
		LessonID          string    `db:"lesson_id"`
		Downloaded        bool      `db:"downloaded"`
		DownloadedVersion int       `db:"downloaded_version"`
		UpdatedAt         time.Time `db:"updated_at"`
	}

	lessonRepository struct {
		baseRepository
	}
)

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *sqlx.DB, conf *core.Config) lesson.Repository {
	return &lessonRepository{baseRepository: newBaseRepository(db, conf)}
}

func (r lessonRow) lesson() lesson.Lesson {
	return lesson.Lesson{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Title:     r.Title,
		PDFURL:    r.PDFURL.Ptr(),
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r userLessonRow) userLesson() lesson.UserLesson {
	return lesson.UserLesson{
		UserID:            r.UserID,
		LessonID:          r.LessonID,
		Downloaded:        r.Downloaded,
		DownloadedVersion: r.DownloadedVersion,
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

const lessonColumns = "l.id, l.subject_id, l.title, l.pdf_url, l.version, l.created_at"

func (repo *lessonRepository) ListLessons(ctx context.Context, subjectID string) ([]lesson.WithSubject, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT ` + lessonColumns + `, s.name AS subject_name
		FROM lessons l
		JOIN subjects s ON s.id = l.subject_id`
	args := []interface{}{}
	if subjectID != "" {
		if _, err := uuid.Parse(subjectID); err != nil {
			return []lesson.WithSubject{}, nil
		}
		q += ` WHERE l.subject_id = $1`
		args = append(args, subjectID)
	}
	q += ` ORDER BY l.created_at DESC, l.id`

	var rows []lessonRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, trapErr(err, nil, "selecting lessons")
	}
	lessons := make([]lesson.WithSubject, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, lesson.WithSubject{Lesson: r.lesson(), SubjectName: r.SubjectName.String})
	}
	return lessons, nil
}

func (repo *lessonRepository) GetLesson(ctx context.Context, id string) (lesson.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+lessonColumns+` FROM lessons l WHERE l.id = $1`, id); err != nil {
		return lesson.Lesson{}, trapErr(err, lesson.ErrNotFound, "selecting lesson")
	}
	return row.lesson(), nil
}

func (repo *lessonRepository) CreateLesson(ctx context.Context, lsn lesson.Lesson) (lesson.Lesson, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	lsn.ID = uuid.New().String()
	if lsn.CreatedAt.IsZero() {
		lsn.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO lessons (id, subject_id, title, pdf_url, version, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		lsn.ID, lsn.SubjectID, lsn.Title, null.StringFromPtr(lsn.PDFURL), lsn.Version, lsn.CreatedAt); err != nil {
		return lesson.Lesson{}, trapErr(err, nil, "inserting lesson")
	}
	return lsn, nil
}

func (repo *lessonRepository) UpdateLesson(ctx context.Context, lsn lesson.Lesson) (lesson.Lesson, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row lessonRow
	q := `UPDATE lessons l
		SET subject_id = $2, title = $3, pdf_url = $4, version = $5
		WHERE l.id = $1
		RETURNING ` + lessonColumns
	err := repo.db.GetContext(ctx, &row, q, lsn.ID, lsn.SubjectID, lsn.Title, null.StringFromPtr(lsn.PDFURL), lsn.Version)
	if err != nil {
		return lesson.Lesson{}, trapErr(err, lesson.ErrNotFound, "updating lesson")
	}
	return row.lesson(), nil
}

func (repo *lessonRepository) DeleteLesson(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return lesson.ErrNotFound
	}
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return trapErr(err, nil, "deleting lesson")
	}
	return checkAffected(res, lesson.ErrNotFound)
}

const userLessonColumns = "user_id, lesson_id, downloaded, downloaded_version, updated_at"

func (repo *lessonRepository) ListUserLessons(ctx context.Context, userID string) ([]lesson.UserLesson, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []userLessonRow
	q := `SELECT ` + userLessonColumns + ` FROM user_lessons WHERE user_id = $1 ORDER BY lesson_id`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, trapErr(err, nil, "selecting user lessons")
	}
	uls := make([]lesson.UserLesson, 0, len(rows))
	for _, r := range rows {
		uls = append(uls, r.userLesson())
	}
	return uls, nil
}

func (repo *lessonRepository) UpsertUserLesson(ctx context.Context, ul lesson.UserLesson) (lesson.UserLesson, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	if ul.UpdatedAt.IsZero() {
		ul.UpdatedAt = time.Now().UTC()
	}
	var row userLessonRow
	q := `INSERT INTO user_lessons (id, user_id, lesson_id, downloaded, downloaded_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, lesson_id) DO UPDATE
			SET downloaded = EXCLUDED.downloaded,
				downloaded_version = EXCLUDED.downloaded_version,
				updated_at = EXCLUDED.updated_at
		RETURNING ` + userLessonColumns
	err := repo.db.GetContext(ctx, &row, q,
		uuid.New().String(), ul.UserID, ul.LessonID, ul.Downloaded, ul.DownloadedVersion, ul.UpdatedAt)
	if err != nil {
		return lesson.UserLesson{}, trapErr(err, nil, "upserting user lesson")
	}
	return row.userLesson(), nil
}
