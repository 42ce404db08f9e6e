// Package schema holds the structural validation applied to every write
// before it reaches the store.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxDiffSummary = 500

// enums maps each custom tag to its allowed values.
var enums = map[string][]string{
	"revaction":      {"create", "update", "delete", "status_change", "system_update"},
	"role":           {"pipeline", "editor", "member", "admin", "system"},
	"entitytype":     {"dossier", "source", "claim", "finding", "edge", "open_question", "dispute", "suggestion"},
	"claimkind":      {"fact", "interpretation", "value", "question"},
	"claimstatus":    {"open", "supported", "refuted", "unclear"},
	"verdict":        {"supports", "refutes", "unclear", "mixed"},
	"producer":       {"pipeline", "editor"},
	"noderef":        {"claim", "source", "finding", "open_question"},
	"edgerel":        {"supports", "refutes", "mentions", "depends_on", "questions", "context_for"},
	"questionstatus": {"open", "answered", "closed"},
	"responsibility": {"municipality", "agency", "association", "editorial", "other"},
	"sourcetype":     {"official", "research", "primary_doc", "quality_media", "stakeholder", "other"},
	"dossierstatus":  {"draft", "active", "archived"},
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	for tag, allowed := range enums {
		_ = validate.RegisterValidation(tag, enumValidator(allowed))
	}
}

func enumValidator(allowed []string) validator.Func {
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	}
}

// Allowed returns the permitted values for an enum tag.
func Allowed(tag string) []string {
	return append([]string{}, enums[tag]...)
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError is returned before anything is persisted.
type ValidationError struct {
	Kind   string       `json:"kind"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s (%s=%s)", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, ", "))
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Check validates v and converts validator failures into a ValidationError
// labelled with kind.
func Check(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	out := &ValidationError{Kind: kind, Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: trimRoot(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}

func trimRoot(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
