package academic

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

func init() {
	_ = core.Validate.RegisterValidation("relation", relationValidation)
	core.RegisterCustomTranslation("relation", "invalid relation")
}

func relationValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, rel := range AllRelations {
		if val == rel {
			return true
		}
	}
	return false
}
