// Package validation проверяет входные структуры по тегам validate и
// переводит нарушения в ошибки категории domain.ErrInvalidInput.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator возвращает общий экземпляр validator с именами полей из json-тегов.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// Struct валидирует v. Нарушения тегов возвращаются как domain.InvalidInput.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %T: %w", v, err)
	}

	violations := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, fieldError(fe))
	}
	return domain.InvalidInput(violations...)
}

func fieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), namespaceRoot(fe))
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "len":
		return fmt.Errorf("%s must have length %s", field, fe.Param())
	case "min":
		return fmt.Errorf("%s must have at least %s element(s)", field, fe.Param())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Errorf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", field, fe.Param())
	case "email":
		return fmt.Errorf("%s must be a valid email", field)
	default:
		return fmt.Errorf("%s failed %q validation", field, fe.Tag())
	}
}

// namespaceRoot отрезает имя корневой структуры: "OrderPayload.items[0].sku" → "items[0].sku".
func namespaceRoot(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[:idx+1]
	}
	return ""
}
