package feed

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

func init() {
	_ = core.Validate.RegisterValidation("priority", priorityValidation)
	core.RegisterCustomTranslation("priority", "invalid priority")
}

func priorityValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, p := range AllNoticePriorities {
		if val == p {
			return true
		}
	}
	return false
}
