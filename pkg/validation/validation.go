// Package validation checks documents against field rules before they are
// written, producing messages per field rather than a single error.
package validation

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kubusdb/kubus/internal/codec"
	"github.com/kubusdb/kubus/pkg/constants"
)

// Outcome is the result of a validation run.
type Outcome struct {
	Violations map[string][]string
}

func (o Outcome) Valid() bool {
	return len(o.Violations) == 0
}

// Err returns nil for a valid outcome and an *Error otherwise.
func (o Outcome) Err() error {
	if o.Valid() {
		return nil
	}
	return &Error{Violations: o.Violations}
}

// Error carries the violations of a failed validation.
type Error struct {
	Violations map[string][]string
}

func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, e.Violations[f]...)
	}
	return fmt.Sprintf("%s: %s", constants.ErrValidation, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() error {
	return constants.ErrValidation
}

// Validator evaluates Rules with go-playground/validator.
type Validator struct {
	validate *validator.Validate
	codec    *codec.JSON
}

func New() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		codec:    codec.New(),
	}
}

// RegisterValidation adds a custom tag usable in Constraint.Tag.
func (v *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

// Validate checks obj against rules. obj is inspected through its JSON form
// and never modified. The error is only set when the rules themselves are
// unusable, e.g. an unknown tag.
func (v *Validator) Validate(ctx context.Context, obj any, rules Rules) (Outcome, error) {
	doc, err := codec.Project(v.codec, obj)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: cannot inspect %T: %v", constants.ErrInvalidArgument, obj, err)
	}

	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	violations := map[string][]string{}
	for _, field := range fields {
		msgs, err := v.check(ctx, field, lookup(doc, field), rules[field])
		if err != nil {
			return Outcome{}, err
		}
		if len(msgs) > 0 {
			violations[field] = msgs
		}
	}

	return Outcome{Violations: violations}, nil
}

func (v *Validator) check(ctx context.Context, field string, value any, c Constraint) (msgs []string, err error) {
	if blank(value) {
		if c.Required {
			return []string{message(field, c, "can't be blank")}, nil
		}
		return nil, nil
	}
	if c.Tag == "" {
		return nil, nil
	}

	// validator panics on tags it does not know
	defer func() {
		if r := recover(); r != nil {
			msgs, err = nil, fmt.Errorf("%w: rule for %q: %v", constants.ErrInvalidArgument, field, r)
		}
	}()

	verr := v.validate.VarCtx(ctx, value, c.Tag)
	if verr == nil {
		return nil, nil
	}

	fieldErrs, ok := verr.(validator.ValidationErrors)
	if !ok {
		return nil, fmt.Errorf("%w: rule for %q: %v", constants.ErrInvalidArgument, field, verr)
	}
	for _, fe := range fieldErrs {
		msgs = append(msgs, message(field, c, describe(fe)))
	}
	return msgs, nil
}

func message(field string, c Constraint, generated string) string {
	if c.Message != "" {
		return c.Message
	}
	return field + " " + generated
}

func describe(fe validator.FieldError) string {
	numeric := fe.Kind() == reflect.Float64 || fe.Kind() == reflect.Int
	switch fe.Tag() {
	case "required":
		return "can't be blank"
	case "email":
		return "is not a valid email"
	case "url", "uri", "http_url":
		return "is not a valid url"
	case "uuid", "uuid4":
		return "is not a valid UUID"
	case "oneof":
		return "is not included in the list"
	case "min", "gte":
		if numeric {
			return "must be greater than or equal to " + fe.Param()
		}
		return "is too short (minimum is " + fe.Param() + ")"
	case "max", "lte":
		if numeric {
			return "must be less than or equal to " + fe.Param()
		}
		return "is too long (maximum is " + fe.Param() + ")"
	case "len":
		return "is the wrong length (should be " + fe.Param() + ")"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	}
	if fe.Param() != "" {
		return fmt.Sprintf("is invalid (%s=%s)", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("is invalid (%s)", fe.Tag())
}

// lookup resolves a dotted path in a decoded JSON object.
func lookup(doc map[string]any, path string) any {
	if v, ok := doc[path]; ok {
		return v
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
