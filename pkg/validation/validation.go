// Package validation turns validator/v10 failures into the field lists returned to clients.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMissingFields is matched by every MissingFieldsError.
var ErrMissingFields = errors.New("missing_required_fields")

// MissingFieldsError lists every field an operation requires and the ones that were absent.
type MissingFieldsError struct {
	Required []string
	Missing  []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

// Validator wraps a shared validator instance keyed by json field names.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(tagName)
	return &Validator{v: v}
}

var std = New()

// Struct validates s with the package validator.
func Struct(s any) error {
	return std.Struct(s)
}

// Struct validates s. Required failures become a MissingFieldsError;
// other tag failures are returned as they are.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() != "required" {
			return err
		}
		missing = append(missing, fieldPath(fe.Namespace()))
	}
	return &MissingFieldsError{Required: RequiredFields(s), Missing: missing}
}

// RequiredFields lists the names of the fields tagged required, in declaration order.
// Nested struct fields are reported as parent.child.
func RequiredFields(s any) []string {
	t := reflect.TypeOf(s)
	if t == nil {
		return nil
	}
	return requiredFields(t, "")
}

func requiredFields(t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var fields []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tagName(f)
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			fields = append(fields, requiredFields(ft, prefix+name+".")...)
			continue
		}
		if hasRequired(f.Tag.Get("validate")) {
			fields = append(fields, prefix+name)
		}
	}
	return fields
}

func tagName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		if name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func hasRequired(tag string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == "required" {
			return true
		}
	}
	return false
}
