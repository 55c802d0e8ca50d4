package quiz

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktab/core"
)

var (
	endAfterStartTag  = "end_after_start"
	endAfterStartText = "end time must be after start time"
)

// InitValidators registers the quiz validations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(testStructValidation, NewTest{})
	core.RegisterCustomTranslation(validate, translator, endAfterStartTag, endAfterStartText)
}

// testStructValidation checks that a test ends after it starts.
func testStructValidation(sl validator.StructLevel) {
	nt := sl.Current().Interface().(NewTest)
	if nt.StartTime.IsZero() || nt.EndTime.IsZero() {
		return
	}
	if !nt.EndTime.After(nt.StartTime) {
		sl.ReportError(nt.EndTime, "end_time", "EndTime", endAfterStartTag, "")
	}
}
