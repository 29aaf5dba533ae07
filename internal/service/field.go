package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/stemsi/classpoll/internal/model"
)

// Field update errors.
var (
	ErrUnknownField = errors.New("field cannot be updated")
	ErrInvalidValue = errors.New("invalid field value")
)

// FieldError names the field whose value was rejected.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() []error { return []error{ErrInvalidValue, e.Err} }

var fieldValidator = validator.New()

// Rules applied to single-field edits. They mirror the binding tags of the create payloads.
const (
	titleRule       = "required,max=255"
	rewardPointRule = "min=0,max=10000"
)

// decodeField unmarshals raw into T and checks it against rule, if any.
func decodeField[T any](field string, raw json.RawMessage, rule string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &FieldError{Field: field, Err: err}
	}
	if rule != "" {
		if err := fieldValidator.Var(v, rule); err != nil {
			return v, &FieldError{Field: field, Err: err}
		}
	}
	return v, nil
}

// decodeOptionField parses the value of an option field edit.
func decodeOptionField(field model.OptionField, raw json.RawMessage) (any, error) {
	switch field {
	case model.OptionFieldTitle:
		return decodeField[string](string(field), raw, titleRule)
	case model.OptionFieldRewardPoint:
		return decodeField[int](string(field), raw, rewardPointRule)
	case model.OptionFieldEffect:
		return decodeField[bool](string(field), raw, "")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}
