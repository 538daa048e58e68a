package lending

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// WorkInput holds the librarian-supplied fields of a new Work.
type WorkInput struct {
	Title  string `validate:"required,max=256"`
	Author string `validate:"required,max=256"`
	Genre  string `validate:"required,max=128"`
	Pages  int    `validate:"gt=0"`
}

// BorrowerInput holds the fields of a new Borrower.
type BorrowerInput struct {
	ID   int64  `validate:"gt=0"`
	Name string `validate:"required,max=256"`
	Role string `validate:"required,oneof=student librarian"`
}

// DigitalItemInput holds the librarian-supplied fields of a new DigitalItem.
type DigitalItemInput struct {
	Title        string `validate:"required,max=256"`
	Author       string `validate:"required,max=256"`
	Genre        string
	Pages        int    `validate:"gte=0"`
	Format       string `validate:"max=32"`
	DownloadLink string `validate:"omitempty,url"`
	DRMProtected bool
	MaxAccessors int `validate:"gt=0"`
}

var (
	inputValidator     *validator.Validate
	inputValidatorOnce sync.Once
)

func validate() *validator.Validate {
	inputValidatorOnce.Do(func() {
		inputValidator = validator.New(validator.WithRequiredStructEnabled())
	})

	return inputValidator
}

// validateInput runs the struct validation and joins any field failures with the given sentinel,
// so callers can check both errors.Is(err, sentinel) and errors.As(err, &ValidationErrors{}).
func validateInput(input any, sentinel error) error {
	err := validate().Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Join(sentinel, err)
	}

	return errors.Join(sentinel, translateValidationErrors(fieldErrs))
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		field := strings.ToLower(err.Field())
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			message = fmt.Sprintf("%s must not be negative", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", field)
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return validationErrors
}

func (in WorkInput) normalized() WorkInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)

	return in
}

func (in BorrowerInput) normalized() BorrowerInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Role = normalize(in.Role)

	return in
}

func (in DigitalItemInput) normalized() DigitalItemInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Format = strings.TrimSpace(in.Format)
	in.DownloadLink = strings.TrimSpace(in.DownloadLink)

	return in
}
