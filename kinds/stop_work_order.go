package kinds

import (
	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Stop work order statuses. Resolved is the closed state.
const (
	StopWorkDraft     = "draft"
	StopWorkActive    = "active"
	StopWorkResolved  = "resolved"
	StopWorkCancelled = "cancelled"
)

var stopReasons = []string{"unsafe_condition", "unsafe_act", "equipment_failure", "weather", "regulatory", "other"}

func StopWorkOrder() *schema.Kind {
	fields := []schema.Field{
		schema.Time("dateTime"),
		schema.String("areaStopped"),
		schema.String("activityStopped"),
		schema.Enum("reasonCategory", stopReasons...),
		schema.String("reasonDescription"),
		schema.String("issuedBy"),
		schema.String("immediateActions"),
		schema.String("duration"),
		schema.Strings("photos"),
		schema.String("resolvedBy"),
		schema.Time("resolvedAt"),
		schema.String("resolutionNotes"),
		schema.String("cancellationReason"),
	}
	fields = append(fields, actionFields()...)

	return &schema.Kind{
		Name:       "stop-work-order",
		Title:      "Stop work order",
		Collection: "stop_work_orders",
		DateField:  "dateTime",
		Fields:     fields,
		Lifecycle: schema.Lifecycle{
			States:  []string{StopWorkDraft, StopWorkActive, StopWorkResolved, StopWorkCancelled},
			Initial: StopWorkDraft,
			Draft:   StopWorkDraft,
			Entry:   []string{StopWorkActive},
			Actions: []schema.Action{
				{Name: "submit", From: []string{StopWorkDraft}, To: StopWorkActive},
				{
					Name:     "resolve",
					From:     []string{StopWorkActive},
					To:       StopWorkResolved,
					Fields:   []string{"resolvedBy", "resolutionNotes"},
					Requires: []string{"resolvedBy"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "resolvedAt", in.Now)
					},
				},
				{
					Name:   "cancel",
					From:   []string{StopWorkDraft, StopWorkActive},
					To:     StopWorkCancelled,
					Fields: []string{"cancellationReason"},
				},
				assignAction("", StopWorkActive),
				completeAction(),
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("areaStopped", "activityStopped", "reasonCategory", "reasonDescription", "issuedBy", "immediateActions"),
			schema.RequiredIf("resolvedBy", schema.Equals(models.FieldStatus, StopWorkResolved), "the order is resolved"),
			schema.RequiredWith("actionDeadline", "actionOwner"),
			schema.MaxItems("photos", MaxPhotos),
		},
		Derive: []schema.DeriveFunc{
			autoClose(StopWorkResolved, "resolvedAt"),
			resolvedByActor,
			stampOnStatus("resolvedAt", StopWorkResolved),
		},
		Filters: []schema.Filter{
			schema.Exact("reasonCategory"),
			schema.Search("areaStopped"),
			schema.Search("issuedBy"),
		},
		Stats: []schema.Stat{
			totals("summary", countsOf("reasonCategory", stopReasons...)...),
			countBy("byReason", "reasonCategory"),
		},
		Reports: []schema.Report{
			listReport("active/current", repository.Sort{Field: "dateTime", Desc: true}, noNow(
				repository.Eq(models.FieldStatus, StopWorkActive),
			)),
			breakdownReport("reasons/categories", "reasonCategory"),
			overdueActions(StopWorkResolved),
		},
		Indexes: [][]string{{"projectId", "dateTime"}, {"status", "reasonCategory"}},
	}
}

// resolvedByActor credits an order closed by its corrective action to
// whoever completed the action.
func resolvedByActor(doc models.Document, env schema.DeriveEnv) {
	if doc.String(models.FieldStatus) == StopWorkResolved && doc.Bool("actionCompleted") {
		schema.StampActor(doc, "resolvedBy", env.Actor)
	}
}
