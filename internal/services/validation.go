package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"dailybudget/internal/core"
)

// SalaryInput is a salary entered by the user. Zero is allowed.
type SalaryInput struct {
	Amount core.Money `validate:"gte=0"`
}

// CategoryInput carries the user-editable fields of a category.
type CategoryInput struct {
	Name              string     `validate:"required,max=100"`
	MonthlyAllocation core.Money `validate:"gte=0"`
	ShowWeeklyBalance bool
}

// ExpenseInput carries the user-editable fields of an expense.
type ExpenseInput struct {
	CategoryID string     `validate:"required"`
	Amount     core.Money `validate:"gt=0"`
	Date       core.Date  `validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Validate amounts on their cents and dates on their printed form.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if m, ok := f.Interface().(core.Money); ok {
			return m.Cents
		}
		return nil
	}, core.Money{})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(core.Date); ok && !d.IsZero() {
			return d.String()
		}
		return ""
	}, core.Date{})
	return v
}

// check runs struct validation and turns failures into ErrInvalidInput.
func (s *BudgetService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s cannot be negative", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be positive", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
