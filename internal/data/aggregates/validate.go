package aggregates

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
)

var validate = validator.New()

// validateInput runs struct tag validation and reports failing fields as details.
func validateInput(op string, in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domainagg.NewError(domainagg.CodeValidation, op, err.Error(), err)
	}
	fields := make([]string, 0, len(verrs))
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		details[fe.Field()] = fe.Tag()
	}
	return domainagg.NewErrorWithDetails(
		domainagg.CodeValidation,
		op,
		"invalid input: "+strings.Join(fields, ", "),
		details,
	)
}
