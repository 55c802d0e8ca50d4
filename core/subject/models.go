package subject

import (
	"time"

	"github.com/trezcool/maktab/core"
)

type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewSubject contains information needed to create (or rename) a Subject.
type NewSubject struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

func (ns *NewSubject) Clean() {
	ns.Name = core.CleanString(ns.Name)
}

type UpdateSubject = NewSubject

var (
	// OrderByCreatedAt is the order subjects are listed in on the admin panel.
	OrderByCreatedAt = core.DBOrdering{Field: "created_at", Ascending: true}
	// OrderByName is the order subjects are listed in for students.
	OrderByName = core.DBOrdering{Field: "name", Ascending: true}

	orderingFields = map[string]bool{"created_at": true, "name": true}
)
