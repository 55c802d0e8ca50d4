package client

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
)

// newResponseValidator checks the fields the SDK relies on in every decoded object.
func newResponseValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterStructValidation(requireFields("ID", "Name"), subject.Subject{})
	validate.RegisterStructValidation(requireFields("ID", "SubjectID", "Title"), lesson.StudentLesson{})
	validate.RegisterStructValidation(requireFields("UserID", "LessonID"), lesson.UserLesson{})
	validate.RegisterStructValidation(requireFields("ID", "SubjectID", "Name"), quiz.StudentTest{})
	validate.RegisterStructValidation(studentQuestionValidation, quiz.StudentQuestion{})
	validate.RegisterStructValidation(requireFields("UserID"), ranking.Entry{}, user.Profile{})
	validate.RegisterStructValidation(requireFields("TestID"), ranking.TestResult{})
	validate.RegisterStructValidation(requireFields("ID", "Email"), user.User{})
	return validate
}

// requireFields reports the named fields (promoted ones included) when they hold their zero value.
func requireFields(names ...string) validator.StructLevelFunc {
	return func(sl validator.StructLevel) {
		cur := sl.Current()
		for _, name := range names {
			fld := cur.FieldByName(name)
			if !fld.IsValid() || fld.IsZero() {
				sl.ReportError(zeroOf(fld), name, name, "required", "")
			}
		}
	}
}

func zeroOf(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func studentQuestionValidation(sl validator.StructLevel) {
	requireFields("ID", "TestID", "Text")(sl)
	q := sl.Current().Interface().(quiz.StudentQuestion)
	if len(q.Options) != len(quiz.OptionLabels) {
		sl.ReportError(q.Options, "options", "Options", "len", "4")
	}
}
