package schema

import (
	"fmt"
	"strings"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
)

// DeriveEnv is passed to derivation hooks on every persist.
type DeriveEnv struct {
	Now      time.Time
	Input    models.Document // the caller payload of this write
	Actor    models.Actor
	Creating bool
	Draft    bool // set by Prepare when the record is in its draft state
}

type DeriveFunc func(doc models.Document, env DeriveEnv)

// ReadFunc recomputes time-dependent state on the way out of the store.
type ReadFunc func(doc models.Document, now time.Time)

// HumanID describes a generated, human-readable, unique identifier.
type HumanID struct {
	Field    string
	Generate func(now time.Time, rnd func(n int) int) string
}

type FilterMode int

const (
	FilterExact FilterMode = iota
	FilterContains
	FilterBool
)

// Filter maps a list query parameter onto a record field.
type Filter struct {
	Param string
	Field string
	Mode  FilterMode
}

func Exact(field string) Filter  { return Filter{Param: field, Field: field, Mode: FilterExact} }
func Search(field string) Filter { return Filter{Param: field, Field: field, Mode: FilterContains} }
func Flag(field string) Filter   { return Filter{Param: field, Field: field, Mode: FilterBool} }

// As renames the query parameter of a filter.
func (f Filter) As(param string) Filter {
	f.Param = param
	return f
}

// Stat is one named aggregate of the statistics overview. Single stats
// collapse to their only row.
type Stat struct {
	Name   string
	Agg    repository.Aggregation
	Single bool
}

// Kind is the declarative description of one record type. The record
// service drives every kind through the same create, update and action
// pipeline: normalize, run lifecycle action, derive, validate, persist.
type Kind struct {
	Name       string
	Title      string
	Collection string
	DateField  string
	Fields     []Field
	Lifecycle  Lifecycle
	Rules      []Rule
	Derive     []DeriveFunc
	OnRead     []ReadFunc
	// Stale selects stored records whose OnRead hooks would change their
	// status, so queries can write the change back first.
	Stale      func(now time.Time) []repository.Cond
	HumanID    *HumanID
	Filters    []Filter
	Stats      []Stat
	Reports    []Report
	Indexes    [][]string
	Unique     [][]string // unique keys besides the human-readable ID
}

func (k *Kind) StatusField() string {
	return k.Lifecycle.StatusField()
}

func (k *Kind) Status(doc models.Document) string {
	return doc.String(k.StatusField())
}

func (k *Kind) IsDraft(doc models.Document) bool {
	return k.Lifecycle.HasDraft() && k.Status(doc) == k.Lifecycle.Draft
}

func (k *Kind) envelope() []Field {
	return []Field{
		String(models.FieldID),
		String(models.FieldProjectID),
		String(k.StatusField()),
		String(models.FieldCreatedBy),
		String(models.FieldUpdatedBy),
		Time(models.FieldCreatedAt),
		Time(models.FieldUpdatedAt),
	}
}

// Normalize keeps declared fields only, trims text, filters blank list
// entries and coerces values to their canonical types.
func (k *Kind) Normalize(raw models.Document) (models.Document, error) {
	ve := &ValidationError{}
	out := normalizeFields(raw, append(k.envelope(), k.Fields...), "", ve)
	if err := ve.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sanitize removes everything a caller may not write directly.
func (k *Kind) Sanitize(payload models.Document) models.Document {
	out := models.Document{}
	for key, v := range payload {
		out[key] = v
	}
	for _, f := range models.SystemFields {
		delete(out, f)
	}
	stripDerived(out, k.Fields)
	// a generated identifier can be replaced but never cleared
	if k.HumanID != nil {
		switch v := out[k.HumanID.Field].(type) {
		case nil:
			delete(out, k.HumanID.Field)
		case string:
			if strings.TrimSpace(v) == "" {
				delete(out, k.HumanID.Field)
			}
		}
	}
	return out
}

func (k *Kind) ApplyDefaults(doc models.Document) {
	applyDefaults(doc, k.Fields)
}

// Read applies read-time derivations such as expiry.
func (k *Kind) Read(doc models.Document, now time.Time) models.Document {
	for _, fn := range k.OnRead {
		fn(doc, now)
	}
	return doc
}

// Prepare runs every derivation hook; it is part of every persist.
func (k *Kind) Prepare(doc models.Document, env DeriveEnv) {
	k.Read(doc, env.Now)
	env.Draft = k.IsDraft(doc)
	for _, fn := range k.Derive {
		fn(doc, env)
	}
}

// Validate checks doc against the kind's rules and reports all violations.
// Records in the draft state only need a project and their primary date.
func (k *Kind) Validate(doc models.Document, now time.Time) error {
	ve := &ValidationError{}
	status := k.Status(doc)
	if !k.Lifecycle.Valid(status) {
		ve.Add(k.StatusField(), fmt.Sprintf("%s must be one of: %s", k.StatusField(), strings.Join(k.Lifecycle.States, ", ")))
	}
	in := Input{Doc: doc, Draft: k.IsDraft(doc), Now: now}
	base := []string{models.FieldProjectID}
	if k.DateField != "" {
		base = append(base, k.DateField)
	}
	ve.Merge(Required(base...)(in))
	checkEnums(doc, k.Fields, "", ve)
	ve.Merge(runAll(k.Rules, in))
	return ve.Err()
}

// Transition moves doc to status to through the matching lifecycle action.
func (k *Kind) Transition(doc models.Document, to string, in ActionInput) error {
	from := k.Status(doc)
	if to == from {
		return nil
	}
	if !k.Lifecycle.Valid(to) {
		return Invalid(k.StatusField(), fmt.Sprintf("%s must be one of: %s", k.StatusField(), strings.Join(k.Lifecycle.States, ", ")))
	}
	a, ok := k.Lifecycle.ActionTo(from, to)
	if !ok {
		return &TransitionError{Kind: k.Name, From: from, To: to}
	}
	return k.apply(doc, a, in)
}

// Perform runs a named lifecycle action.
func (k *Kind) Perform(doc models.Document, name string, in ActionInput) error {
	a, ok := k.Lifecycle.Action(name)
	if !ok {
		return fmt.Errorf("%s %q: %w", k.Name, name, ErrUnknownAction)
	}
	from := k.Status(doc)
	if !a.Allows(from) {
		return &TransitionError{Kind: k.Name, From: from, To: a.To, Action: name}
	}
	return k.apply(doc, a, in)
}

func (k *Kind) apply(doc models.Document, a Action, in ActionInput) error {
	payload := in.Payload
	if payload == nil {
		payload = models.Document{}
	}
	for _, f := range a.Fields {
		if v, ok := payload.Get(f); ok {
			doc.Set(f, v)
		}
	}
	ve := &ValidationError{}
	for _, f := range a.Payload {
		if !payload.Present(f) {
			ve.Add(f, fmt.Sprintf("%s is required to %s", f, strings.ReplaceAll(a.Name, "-", " ")))
		}
	}
	for _, f := range a.Requires {
		if !doc.Present(f) {
			ve.Add(f, fmt.Sprintf("%s is required to %s", f, strings.ReplaceAll(a.Name, "-", " ")))
		}
	}
	if err := ve.Err(); err != nil {
		return err
	}
	if a.Check != nil {
		if err := a.Check(doc, in); err != nil {
			return err
		}
	}
	if a.To != "" {
		doc[k.StatusField()] = a.To
	}
	if a.Apply != nil {
		a.Apply(doc, in)
	}
	return nil
}

// Sortable reports whether field may be used as a list sort key.
func (k *Kind) Sortable(field string) bool {
	switch field {
	case models.FieldCreatedAt, models.FieldUpdatedAt, models.FieldProjectID, k.StatusField():
		return true
	}
	for _, f := range k.Fields {
		if f.Name == field && f.Type != TypeObject && f.Type != TypeObjectList {
			return true
		}
	}
	return false
}

// DefaultSort is most recent first on the kind's primary date.
func (k *Kind) DefaultSort() string {
	if k.DateField != "" {
		return k.DateField
	}
	return models.FieldCreatedAt
}

// UniqueKeys lists the field sets the store must keep unique.
func (k *Kind) UniqueKeys() [][]string {
	keys := append([][]string(nil), k.Unique...)
	if k.HumanID != nil {
		keys = append(keys, []string{k.HumanID.Field})
	}
	return keys
}
