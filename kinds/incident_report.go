package kinds

import (
	"context"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Incident report statuses.
const (
	IncidentDraft                 = "draft"
	IncidentSubmitted             = "submitted"
	IncidentUnderInvestigation    = "under_investigation"
	IncidentInvestigationComplete = "investigation_complete"
	IncidentClosed                = "closed"
)

var (
	incidentTypes      = []string{"near_miss", "first_aid", "medical", "lti", "property", "environmental"}
	incidentSeverities = []string{"low", "medium", "high"}
	followUpStatuses   = []string{"pending", "in_progress", "completed", "overdue"}
)

func IncidentReport() *schema.Kind {
	open := []string{IncidentSubmitted, IncidentUnderInvestigation, IncidentInvestigationComplete}
	return &schema.Kind{
		Name:       "incident-report",
		Title:      "Incident report",
		Collection: "incident_reports",
		DateField:  "dateTime",
		Fields: []schema.Field{
			schema.String("incidentId"),
			schema.Time("dateTime"),
			schema.String("location"),
			schema.Enum("incidentType", incidentTypes...),
			schema.Enum("severity", incidentSeverities...),
			schema.String("description"),
			schema.String("activity"),
			schema.String("equipment"),
			schema.String("weather"),
			schema.Strings("quickPhotos"),
			schema.Strings("photos"),
			schema.String("personName"),
			schema.String("personRole"),
			schema.Enum("personCompany", "MEIL", "Subcontractor", "Visitor"),
			schema.String("injuryDetails"),
			schema.String("treatment"),
			schema.String("witnessName"),
			schema.String("witnessStatement"),
			schema.String("immediateCause"),
			schema.String("rootCause"),
			schema.String("immediateActions"),
			schema.String("correctiveActions"),
			schema.String("investigator"),
			schema.String("investigationNotes"),
			schema.Time("investigationDate"),
			schema.Objects("followUpActions",
				schema.String("id"),
				schema.String("action"),
				schema.String("assignedTo"),
				schema.Time("dueDate"),
				schema.Enum("status", followUpStatuses...).WithDefault("pending"),
				schema.Time("completedDate"),
				schema.String("completedBy"),
				schema.String("notes"),
			).WithIDs(),
			schema.Bool("smsAlertSent").WithDefault(false),
			schema.Bool("emailAlertSent").WithDefault(false),
			schema.Enum("priorityLevel", "critical", "high", "normal").Derived(),
			schema.Bool("requiresInvestigation").Derived(),
			schema.Time("submittedAt"),
			schema.Time("closedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{IncidentDraft, IncidentSubmitted, IncidentUnderInvestigation, IncidentInvestigationComplete, IncidentClosed},
			Initial: IncidentDraft,
			Draft:   IncidentDraft,
			Entry:   []string{IncidentSubmitted},
			Actions: []schema.Action{
				{Name: "submit", From: []string{IncidentDraft}, To: IncidentSubmitted},
				{
					Name:     "assign-investigator",
					From:     []string{IncidentSubmitted, IncidentUnderInvestigation},
					To:       IncidentUnderInvestigation,
					Fields:   []string{"investigator", "investigationNotes"},
					Requires: []string{"investigator"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["investigationDate"] = in.Now
					},
				},
				{
					Name:     "complete-investigation",
					From:     []string{IncidentUnderInvestigation},
					To:       IncidentInvestigationComplete,
					Fields:   []string{"rootCause", "correctiveActions", "investigationNotes"},
					Requires: []string{"rootCause", "correctiveActions"},
				},
				{Name: "close", From: open, To: IncidentClosed},
				addItem("add-follow-up", "followUpActions", []string{"action"},
					[]string{"action", "assignedTo", "dueDate", "notes"}, models.Document{"status": "pending"}),
				updateItem("update-follow-up", "followUpActions", "actionId", "id",
					[]string{"status", "completedDate", "notes", "assignedTo", "dueDate"},
					func(item models.Document, in schema.ActionInput) {
						if item.String("status") == "completed" {
							schema.Stamp(item, "completedDate", in.Now)
							if !item.Present("completedBy") {
								item["completedBy"] = in.Actor.ID
							}
						}
					}),
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("location", "incidentType", "severity", "description"),
			schema.NonEmptyList("photos", "At least one photo is required for submitted reports"),
			schema.RequiredIf("investigator", schema.Equals(models.FieldStatus, IncidentUnderInvestigation), "the incident is under investigation"),
			schema.Each("followUpActions", schema.Required("action")),
		},
		Derive: []schema.DeriveFunc{
			derivePriority,
			markOverdueFollowUps,
			stampOnStatus("submittedAt", open...),
			stampOnStatus("closedAt", IncidentClosed),
		},
		HumanID: &schema.HumanID{Field: "incidentId", Generate: yearSequence("INC", 4, 10000)},
		Filters: []schema.Filter{
			schema.Exact("incidentType"),
			schema.Exact("severity"),
			schema.Exact("incidentId"),
			schema.Search("location"),
			schema.Exact("priorityLevel"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("incidentType", incidentTypes...),
				repository.CountIf("requiresInvestigation", repository.Eq("requiresInvestigation", true)),
			)...),
			countBy("bySeverity", "severity"),
			countBy("byPriority", "priorityLevel"),
		},
		Reports: []schema.Report{
			breakdownReport("types/incident-types", "incidentType"),
			breakdownReport("types/severity-levels", "severity"),
			{Path: "follow-ups/overdue", Run: overdueFollowUps},
		},
		Indexes: [][]string{{"projectId", "dateTime"}, {"status", "incidentType"}, {"followUpActions.status"}},
	}
}

// derivePriority maps type and severity onto a triage level and decides
// whether the incident must be investigated.
func derivePriority(doc models.Document, env schema.DeriveEnv) {
	typ, sev := doc.String("incidentType"), doc.String("severity")
	switch {
	case typ == "lti" || sev == "high":
		doc["priorityLevel"] = "critical"
	case typ == "medical" || sev == "medium":
		doc["priorityLevel"] = "high"
	default:
		doc["priorityLevel"] = "normal"
	}
	doc["requiresInvestigation"] = typ == "lti" || typ == "medical" || typ == "property" || sev == "high"
}

func markOverdueFollowUps(doc models.Document, env schema.DeriveEnv) {
	items := doc.Objects("followUpActions")
	for _, item := range items {
		due, ok := item.Time("dueDate")
		s := item.String("status")
		if ok && due.Before(env.Now) && (s == "pending" || s == "in_progress") {
			item["status"] = "overdue"
		}
	}
	if items != nil {
		doc["followUpActions"] = items
	}
}

func overdueFollowUps(ctx context.Context, rc schema.ReportContext) (any, error) {
	docs, err := rc.Find(ctx, []repository.Cond{
		repository.Nin("followUpActions.status", "completed"),
		repository.Lt("followUpActions.dueDate", rc.Now),
	}, []repository.Sort{{Field: "dateTime", Desc: true}}, 0)
	if err != nil {
		return nil, err
	}
	return schema.Items(docs, "followUpActions", func(parent, item models.Document) bool {
		due, ok := item.Time("dueDate")
		return ok && due.Before(rc.Now) && item.String("status") != "completed"
	}), nil
}
