package schema

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"hseproject/models"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func permitKind() *Kind {
	return &Kind{
		Name:      "permit",
		Title:     "Permit",
		DateField: "date",
		Fields: []Field{
			Time("date"),
			String("title"),
			Int("workers"),
			Float("hours"),
			Bool("hotWork").WithDefault(false),
			Enum("risk", "low", "high"),
			Strings("steps"),
			Objects("crew", String("name"), Enum("role", "lead", "member").WithDefault("member")).WithIDs(),
			Int("views").Counter(),
			Int("stepCount").Derived(),
			String("approvedBy"),
		},
		Lifecycle: Lifecycle{
			States:  []string{"draft", "open", "approved", "closed"},
			Initial: "draft",
			Draft:   "draft",
			Entry:   []string{"open"},
			Actions: []Action{
				{Name: "open", From: []string{"draft"}, To: "open"},
				{
					Name:     "approve",
					From:     []string{"open"},
					To:       "approved",
					Fields:   []string{"approvedBy"},
					Requires: []string{"approvedBy"},
				},
				{Name: "close", From: []string{"open", "approved"}, To: "closed"},
				{Name: "note", Payload: []string{"text"}},
			},
		},
		Rules: []Rule{
			SubmitRequired("title", "workers"),
			NonEmptyList("steps", "At least one step is required"),
			Range("workers", 1, 50),
			RequiredIf("risk", IsTrue("hotWork"), "hot work is planned"),
		},
		Derive: []DeriveFunc{func(doc models.Document, env DeriveEnv) {
			doc["stepCount"] = int64(len(doc.Strings("steps")))
		}},
	}
}

func TestNormalize(t *testing.T) {
	k := permitKind()
	doc, err := k.Normalize(models.Document{
		"projectId": " p1 ",
		"date":      "2026-03-09",
		"title":     "  ",
		"workers":   "4",
		"hours":     2.5,
		"hotWork":   "true",
		"steps":     []any{" isolate ", "", "  ", "test", nil},
		"crew":      []any{map[string]any{"name": "Ann", "age": 40}},
		"unknown":   "dropped",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := models.Document{
		"projectId": "p1",
		"date":      time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		"workers":   int64(4),
		"hours":     2.5,
		"hotWork":   true,
		"steps":     []string{"isolate", "test"},
	}
	crew := doc.Objects("crew")
	delete(doc, "crew")
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("doc = %#v\nwant %#v", doc, want)
	}
	if len(crew) != 1 || crew[0].String("role") != "member" || crew[0].String("id") == "" || crew[0].Has("age") {
		t.Errorf("crew = %v", crew)
	}
}

func TestNormalizeReportsEveryTypeError(t *testing.T) {
	_, err := permitKind().Normalize(models.Document{
		"date":    "someday",
		"workers": "many",
		"hotWork": "perhaps",
		"steps":   "one",
		"crew":    []any{"Ann"},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	for _, field := range []string{"date", "workers", "hotWork", "steps", "crew[0]"} {
		if !ve.Has(field) {
			t.Errorf("missing error for %s in %+v", field, ve.Errors)
		}
	}
}

func TestNormalizeRejectsUnrepresentableNumbers(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   any
	}{
		{"int NaN", "workers", math.NaN()},
		{"int +Inf", "workers", math.Inf(1)},
		{"int -Inf", "workers", math.Inf(-1)},
		{"int above range", "workers", 1e19},
		{"int below range", "workers", -1e19},
		{"int NaN text", "workers", "NaN"},
		{"int huge json", "workers", json.Number("9223372036854775808")},
		{"float NaN", "hours", math.NaN()},
		{"float Inf text", "hours", "Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := permitKind().Normalize(models.Document{tt.field: tt.raw})
			var ve *ValidationError
			if !errors.As(err, &ve) || !ve.Has(tt.field) {
				t.Errorf("Normalize(%v) error = %v, want a %s violation", tt.raw, err, tt.field)
			}
		})
	}

	doc, err := permitKind().Normalize(models.Document{"workers": float64(math.MaxInt32), "hours": 2.5})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if doc["workers"] != int64(math.MaxInt32) || doc["hours"] != 2.5 {
		t.Errorf("normalized = %v", doc)
	}
}

func TestSanitizeStripsSystemAndDerivedFields(t *testing.T) {
	got := permitKind().Sanitize(models.Document{
		"id": "x", "createdBy": "mallory", "createdAt": now, "views": 100, "stepCount": 9, "title": "Ok",
	})
	if !reflect.DeepEqual(got, models.Document{"title": "Ok"}) {
		t.Errorf("sanitized = %v", got)
	}
}

func TestCreateStatus(t *testing.T) {
	lc := permitKind().Lifecycle
	tests := []struct {
		requested string
		want      string
		ok        bool
	}{
		{"", "open", true},
		{"open", "open", true},
		{"draft", "draft", true},
		{"approved", "", false},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		got, ok := lc.CreateStatus(tt.requested)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CreateStatus(%q) = %q, %v", tt.requested, got, ok)
		}
	}
	noEntry := Lifecycle{States: []string{"active"}, Initial: "active"}
	if got, ok := noEntry.CreateStatus(""); got != "active" || !ok {
		t.Errorf("CreateStatus without entry states = %q, %v", got, ok)
	}
}

func TestTransition(t *testing.T) {
	k := permitKind()
	in := ActionInput{Payload: models.Document{}, Now: now}

	doc := models.Document{"status": "draft"}
	if err := k.Transition(doc, "open", in); err != nil || doc.String("status") != "open" {
		t.Fatalf("draft -> open: %v, status %q", err, doc.String("status"))
	}

	var terr *TransitionError
	if err := k.Transition(models.Document{"status": "draft"}, "closed", in); !errors.As(err, &terr) {
		t.Errorf("draft -> closed: expected a transition error, got %v", err)
	} else if terr.From != "draft" || terr.To != "closed" {
		t.Errorf("transition error = %+v", terr)
	}

	var ve *ValidationError
	if err := k.Transition(models.Document{"status": "open"}, "archived", in); !errors.As(err, &ve) {
		t.Errorf("unknown state: expected a validation error, got %v", err)
	}

	same := models.Document{"status": "closed"}
	if err := k.Transition(same, "closed", in); err != nil {
		t.Errorf("same state: %v", err)
	}
}

func TestPerform(t *testing.T) {
	k := permitKind()

	doc := models.Document{"status": "open"}
	err := k.Perform(doc, "approve", ActionInput{Payload: models.Document{}})
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("approvedBy") {
		t.Fatalf("approve without approver: %v", err)
	}
	if doc.String("status") != "open" {
		t.Errorf("failed action changed status to %q", doc.String("status"))
	}

	if err := k.Perform(doc, "approve", ActionInput{Payload: models.Document{"approvedBy": "Sam", "title": "ignored"}}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if doc.String("status") != "approved" || doc.String("approvedBy") != "Sam" || doc.Has("title") {
		t.Errorf("doc = %v", doc)
	}

	var terr *TransitionError
	if err := k.Perform(doc, "open", ActionInput{}); !errors.As(err, &terr) || terr.Action != "open" {
		t.Errorf("open from approved: %v", err)
	}
	if err := k.Perform(doc, "explode", ActionInput{}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	err = k.Perform(doc, "note", ActionInput{Payload: models.Document{}})
	if !errors.As(err, &ve) || !ve.Has("text") {
		t.Errorf("note without text: %v", err)
	}
	if err := k.Perform(doc, "note", ActionInput{Payload: models.Document{"text": "hi"}}); err != nil || doc.String("status") != "approved" {
		t.Errorf("note: %v, status %q", err, doc.String("status"))
	}
}

func TestValidateDraftOnlyNeedsProjectAndDate(t *testing.T) {
	k := permitKind()

	err := k.Validate(models.Document{"status": "draft"}, now)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("projectId") || !ve.Has("date") || len(ve.Errors) != 2 {
		t.Fatalf("empty draft: %v", err)
	}
	if err := k.Validate(models.Document{"status": "draft", "projectId": "p1", "date": now}, now); err != nil {
		t.Errorf("minimal draft: %v", err)
	}

	err = k.Validate(models.Document{"status": "open", "projectId": "p1", "date": now}, now)
	if !errors.As(err, &ve) {
		t.Fatalf("submitted without fields: %v", err)
	}
	for _, field := range []string{"title", "workers", "steps"} {
		if !ve.Has(field) {
			t.Errorf("missing error for %s in %+v", field, ve.Errors)
		}
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	doc := models.Document{
		"status":    "sealed",
		"projectId": "p1",
		"date":      now,
		"title":     "Hot work",
		"workers":   int64(80),
		"hotWork":   true,
		"steps":     []string{"isolate"},
		"crew":      []models.Document{{"name": "Ann", "role": "boss"}},
	}
	err := permitKind().Validate(doc, now)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	for _, field := range []string{"status", "workers", "risk", "crew[0].role"} {
		if !ve.Has(field) {
			t.Errorf("missing error for %s in %+v", field, ve.Errors)
		}
	}
}

func TestPrepareRunsReadAndDerive(t *testing.T) {
	k := permitKind()
	k.OnRead = []ReadFunc{func(doc models.Document, at time.Time) { doc["readAt"] = at }}
	doc := models.Document{"steps": []string{"a", "b"}}
	k.Prepare(doc, DeriveEnv{Now: now})
	if doc.Int("stepCount") != 2 || doc["readAt"] != now {
		t.Errorf("doc = %v", doc)
	}
}

func TestUniqueKeysAndSorting(t *testing.T) {
	k := permitKind()
	k.Unique = [][]string{{"projectId", "title"}}
	k.HumanID = &HumanID{Field: "permitNo"}
	if got := k.UniqueKeys(); !reflect.DeepEqual(got, [][]string{{"projectId", "title"}, {"permitNo"}}) {
		t.Errorf("unique keys = %v", got)
	}
	if len(k.Unique) != 1 {
		t.Error("UniqueKeys modified the kind")
	}
	for field, want := range map[string]bool{"date": true, "createdAt": true, "status": true, "crew": false, "nope": false} {
		if got := k.Sortable(field); got != want {
			t.Errorf("Sortable(%q) = %v", field, got)
		}
	}
	if k.DefaultSort() != "date" {
		t.Errorf("default sort = %q", k.DefaultSort())
	}
}
