package lesson

import (
	"time"

	"github.com/trezcool/maktab/core"
)

const (
	PDFContentType = "application/pdf"
	// DefaultMaxPDFSize is the largest PDF accepted for a lesson: 50 MiB.
	DefaultMaxPDFSize int64 = 50 * 1024 * 1024
)

type Lesson struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Title     string    `json:"title"`
	PDFURL    *string   `json:"pdf_url"`
	Version   int       `json:"version"` // incremented on every PDF upload
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (l Lesson) HasPDF() bool { return l.PDFURL != nil && *l.PDFURL != "" }

// WithSubject is a Lesson joined with the name of its Subject.
type WithSubject struct {
	Lesson
	SubjectName string `json:"subject_name"`
}

// UserLesson marks a lesson as downloaded by a user, at a given PDF version.
type UserLesson struct {
	UserID            string    `json:"user_id"`
	LessonID          string    `json:"lesson_id"`
	Downloaded        bool      `json:"downloaded"`
	DownloadedVersion int       `json:"downloaded_version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StudentLesson is what a student sees of a lesson, including whether their copy is outdated.
type StudentLesson struct {
	WithSubject
	DownloadedVersion *int `json:"downloaded_version"`
}

func (sl StudentLesson) IsOutdated() bool {
	return sl.DownloadedVersion != nil && *sl.DownloadedVersion < sl.Version
}

// NewLesson contains information needed to create a new Lesson.
type NewLesson struct {
	SubjectID string `json:"subject_id" validate:"required,uuid"`
	Title     string `json:"title" validate:"required,min=2,max=200"`
}

func (nl *NewLesson) Clean() {
	nl.SubjectID = core.CleanString(nl.SubjectID, true /* lower */)
	nl.Title = core.CleanString(nl.Title)
}

type UpdateLesson = NewLesson

type QueryFilter struct {
	SubjectID string `query:"subject_id"`
}

func (qf *QueryFilter) Clean() {
	qf.SubjectID = core.CleanString(qf.SubjectID, true /* lower */)
}
