package kinds

import (
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Safety observation statuses.
const (
	ObservationDraft      = "draft"
	ObservationOpen       = "open"
	ObservationInProgress = "in_progress"
	ObservationClosed     = "closed"
	ObservationCancelled  = "cancelled"
)

var (
	observationSeverities = []string{"Low", "Medium", "High", "Critical"}
	observationTypes      = []string{"unsafe_act", "unsafe_condition"}
)

func SafetyObservation() *schema.Kind {
	return &schema.Kind{
		Name:       "safety-observation",
		Title:      "Safety observation",
		Collection: "safety_observations",
		DateField:  "dateTime",
		Fields: []schema.Field{
			schema.Enum("type", observationTypes...),
			schema.Time("dateTime"),
			schema.String("location"),
			schema.String("observedBy"),
			schema.String("observedPerson"),
			schema.Enum("severity", observationSeverities...),
			schema.Int("severityLevel").Derived(),
			schema.String("description"),
			schema.String("correctiveAction"),
			schema.Enum("actionOwner", "site_incharge", "contractor_rep", "other"),
			schema.Time("targetClosureDate"),
			schema.Strings("photos"),
			schema.String("signature"),
			schema.String("assignedTo"),
			schema.Time("closureDate"),
			schema.String("closureNotes"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{ObservationDraft, ObservationOpen, ObservationInProgress, ObservationClosed, ObservationCancelled},
			Initial: ObservationOpen,
			Draft:   ObservationDraft,
			Entry:   []string{ObservationOpen},
			Actions: []schema.Action{
				{Name: "submit", From: []string{ObservationDraft}, To: ObservationOpen},
				{
					Name:   "start",
					From:   []string{ObservationOpen},
					To:     ObservationInProgress,
					Fields: []string{"assignedTo"},
				},
				{
					Name:   "close",
					From:   []string{ObservationOpen, ObservationInProgress},
					To:     ObservationClosed,
					Fields: []string{"closureNotes", "closureDate"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "closureDate", in.Now)
					},
				},
				{Name: "cancel", From: []string{ObservationDraft, ObservationOpen, ObservationInProgress}, To: ObservationCancelled},
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("type", "location", "observedBy", "severity", "description", "actionOwner"),
			schema.OnSubmit(schema.MinLength("description", 10)),
			schema.RequiredIf("correctiveAction", schema.OneOf("severity", "Medium", "High", "Critical"),
				"severity is Medium or above"),
			schema.When(schema.Not(schema.OneOf(models.FieldStatus, ObservationClosed, ObservationCancelled)),
				schema.InFuture("targetClosureDate")),
			schema.MaxItems("photos", MaxPhotos),
		},
		Derive: []schema.DeriveFunc{
			severityLevel("severity", map[string]int{"Low": 1, "Medium": 2, "High": 3, "Critical": 4}),
			stampOnStatus("closureDate", ObservationClosed),
		},
		Filters: []schema.Filter{
			schema.Exact("type"),
			schema.Exact("severity"),
			schema.Search("location"),
			schema.Search("observedBy"),
			schema.Exact("actionOwner"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("severity", observationSeverities...),
				countsOf("type", observationTypes...)...)...),
			countBy("bySeverity", "severity"),
			countBy("byType", "type"),
		},
		Reports: []schema.Report{
			breakdownReport("locations/frequent", "location"),
			listReport("closure/overdue", repository.Sort{Field: "targetClosureDate"}, func(now time.Time) []repository.Cond {
				return []repository.Cond{
					repository.Lt("targetClosureDate", now),
					repository.In(models.FieldStatus, ObservationOpen, ObservationInProgress),
				}
			}),
		},
		Indexes: [][]string{{"projectId", "createdAt"}, {"severity", "status"}, {"observedBy"}},
	}
}
