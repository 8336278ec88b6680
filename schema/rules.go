package schema

import (
	"fmt"
	"strconv"
	"time"

	"hseproject/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Input is what every rule sees: the fully merged record, whether it is
// being saved as a draft, and the clock of the current write.
type Input struct {
	Doc   models.Document
	Draft bool
	Now   time.Time
}

// Rule reports every violation it finds; it never stops at the first one.
type Rule func(in Input) []FieldError

// Predicate selects records a conditional rule applies to.
type Predicate func(doc models.Document) bool

func IsTrue(field string) Predicate {
	return func(doc models.Document) bool { return doc.Bool(field) }
}

func Equals(field, value string) Predicate {
	return func(doc models.Document) bool { return doc.String(field) == value }
}

func OneOf(field string, values ...string) Predicate {
	return func(doc models.Document) bool { return contains(values, doc.String(field)) }
}

func Not(p Predicate) Predicate {
	return func(doc models.Document) bool { return !p(doc) }
}

func fail(field, message string) []FieldError {
	return []FieldError{{Field: field, Message: message}}
}

// Required rejects missing or blank fields.
func Required(fields ...string) Rule {
	return func(in Input) []FieldError {
		var errs []FieldError
		for _, f := range fields {
			if !in.Doc.Present(f) {
				errs = append(errs, FieldError{Field: f, Message: f + " is required"})
			}
		}
		return errs
	}
}

// OnSubmit applies rules only once the record has left its draft state.
func OnSubmit(rules ...Rule) Rule {
	return func(in Input) []FieldError {
		if in.Draft {
			return nil
		}
		return runAll(rules, in)
	}
}

// SubmitRequired is Required gated by OnSubmit.
func SubmitRequired(fields ...string) Rule {
	return OnSubmit(Required(fields...))
}

// When applies rules to records matching p.
func When(p Predicate, rules ...Rule) Rule {
	return func(in Input) []FieldError {
		if !p(in.Doc) {
			return nil
		}
		return runAll(rules, in)
	}
}

// RequiredIf requires field when a sibling condition holds.
func RequiredIf(field string, p Predicate, reason string) Rule {
	return func(in Input) []FieldError {
		if p(in.Doc) && !in.Doc.Present(field) {
			return fail(field, fmt.Sprintf("%s is required when %s", field, reason))
		}
		return nil
	}
}

// RequiredWith requires field whenever companion is filled in.
func RequiredWith(field, companion string) Rule {
	return func(in Input) []FieldError {
		if in.Doc.Present(companion) && !in.Doc.Present(field) {
			return fail(field, fmt.Sprintf("%s is required when %s is set", field, companion))
		}
		return nil
	}
}

// Range checks a numeric field against [min, max] when it is set.
func Range(field string, min, max float64) Rule {
	tag := "gte=" + formatNumber(min) + ",lte=" + formatNumber(max)
	return numberRule(field, tag, fmt.Sprintf("%s must be between %s and %s", field, formatNumber(min), formatNumber(max)))
}

// AtLeast checks a numeric field against a lower bound when it is set.
func AtLeast(field string, min float64) Rule {
	return numberRule(field, "gte="+formatNumber(min), fmt.Sprintf("%s must be at least %s", field, formatNumber(min)))
}

// NonNegative is AtLeast(field, 0) for each field.
func NonNegative(fields ...string) Rule {
	rules := make([]Rule, 0, len(fields))
	for _, f := range fields {
		rules = append(rules, AtLeast(f, 0))
	}
	return All(rules...)
}

func numberRule(field, tag, message string) Rule {
	return func(in Input) []FieldError {
		v, ok := in.Doc.Get(field)
		if !ok {
			return nil
		}
		n, ok := models.ToFloat(v)
		if !ok {
			return fail(field, field+" must be a number")
		}
		if err := validate.Var(n, tag); err != nil {
			return fail(field, message)
		}
		return nil
	}
}

// MinLength checks the length of a text field when it is set.
func MinLength(field string, n int) Rule {
	return func(in Input) []FieldError {
		s := in.Doc.String(field)
		if s == "" {
			return nil
		}
		if err := validate.Var(s, "min="+strconv.Itoa(n)); err != nil {
			return fail(field, fmt.Sprintf("%s must be at least %d characters", field, n))
		}
		return nil
	}
}

// MaxItems caps a list's length.
func MaxItems(field string, n int) Rule {
	return func(in Input) []FieldError {
		if listLen(in.Doc, field) > n {
			return fail(field, fmt.Sprintf("%s cannot have more than %d items", field, n))
		}
		return nil
	}
}

// NonEmptyList requires at least one entry once the record is submitted.
// Free-text lists are filtered before this runs, so blank-only input fails.
func NonEmptyList(field, message string) Rule {
	return OnSubmit(func(in Input) []FieldError {
		if listLen(in.Doc, field) == 0 {
			return fail(field, message)
		}
		return nil
	})
}

// EqualLength requires a declared count to match a list's length.
func EqualLength(countField, listField string) Rule {
	return func(in Input) []FieldError {
		if !in.Doc.Has(countField) {
			return nil
		}
		if n := listLen(in.Doc, listField); in.Doc.Int(countField) != int64(n) {
			return fail(countField, fmt.Sprintf("%s (%d) must equal the number of %s (%d)", countField, in.Doc.Int(countField), listField, n))
		}
		return nil
	}
}

// NotGreaterThan requires a numeric field not to exceed another, e.g. compliant <= total.
func NotGreaterThan(field, limit string) Rule {
	return func(in Input) []FieldError {
		if !in.Doc.Has(field) || !in.Doc.Has(limit) {
			return nil
		}
		if in.Doc.Float(field) > in.Doc.Float(limit) {
			return fail(field, fmt.Sprintf("%s cannot exceed %s", field, limit))
		}
		return nil
	}
}

// NotBefore requires later >= earlier when both are set.
func NotBefore(later, earlier string) Rule {
	return func(in Input) []FieldError {
		l, lok := in.Doc.Time(later)
		e, eok := in.Doc.Time(earlier)
		if lok && eok && l.Before(e) {
			return fail(later, fmt.Sprintf("%s cannot be before %s", later, earlier))
		}
		return nil
	}
}

// After requires later > earlier when both are set.
func After(later, earlier string) Rule {
	return func(in Input) []FieldError {
		l, lok := in.Doc.Time(later)
		e, eok := in.Doc.Time(earlier)
		if lok && eok && !l.After(e) {
			return fail(later, fmt.Sprintf("%s must be after %s", later, earlier))
		}
		return nil
	}
}

// NotInFuture rejects a date later than the write's clock.
func NotInFuture(field string) Rule {
	return func(in Input) []FieldError {
		if t, ok := in.Doc.Time(field); ok && t.After(in.Now) {
			return fail(field, field+" cannot be in the future")
		}
		return nil
	}
}

// InFuture requires a date later than the write's clock.
func InFuture(field string) Rule {
	return func(in Input) []FieldError {
		if t, ok := in.Doc.Time(field); ok && !t.After(in.Now) {
			return fail(field, field+" must be in the future")
		}
		return nil
	}
}

// UniqueBy requires key to be distinct across the entries of list.
func UniqueBy(list, key string) Rule {
	return func(in Input) []FieldError {
		seen := map[string]bool{}
		var errs []FieldError
		for i, entry := range in.Doc.Objects(list) {
			k := entry.String(key)
			if k == "" {
				continue
			}
			if seen[k] {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s[%d].%s", list, i, key),
					Message: fmt.Sprintf("%s %s %q is duplicated", list, key, k),
				})
			}
			seen[k] = true
		}
		return errs
	}
}

// Each runs rules against every entry of an object list. Field names in the
// reported errors are prefixed with the entry's position.
func Each(list string, rules ...Rule) Rule {
	return func(in Input) []FieldError {
		var errs []FieldError
		for i, entry := range in.Doc.Objects(list) {
			prefix := fmt.Sprintf("%s[%d].", list, i)
			for _, fe := range runAll(rules, Input{Doc: entry, Draft: in.Draft, Now: in.Now}) {
				errs = append(errs, FieldError{Field: prefix + fe.Field, Message: prefix + fe.Message})
			}
		}
		return errs
	}
}

// All groups rules into one.
func All(rules ...Rule) Rule {
	return func(in Input) []FieldError {
		return runAll(rules, in)
	}
}

func runAll(rules []Rule, in Input) []FieldError {
	var errs []FieldError
	for _, r := range rules {
		errs = append(errs, r(in)...)
	}
	return errs
}

func listLen(doc models.Document, field string) int {
	v, ok := doc.Get(field)
	if !ok {
		return 0
	}
	switch l := v.(type) {
	case []string:
		return len(l)
	case []any:
		return len(l)
	case []models.Document:
		return len(l)
	}
	return 0
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
