package kinds

import (
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Dangerous occurrence statuses.
const (
	OccurrenceDraft                 = "draft"
	OccurrenceReported              = "reported"
	OccurrenceUnderInvestigation    = "under_investigation"
	OccurrenceInvestigationComplete = "investigation_complete"
	OccurrenceClosed                = "closed"
)

func DangerousOccurrence() *schema.Kind {
	fields := []schema.Field{
		schema.Time("dateTime"),
		schema.String("location"),
		schema.String("situation"),
		schema.String("potentialConsequence"),
		schema.String("preventiveActions"),
		schema.String("reportedBy"),
		schema.Enum("severity", severities...).WithDefault("high"),
		schema.Int("severityLevel").Derived(),
		schema.Strings("photos"),
		schema.Bool("investigationRequired").WithDefault(false),
		schema.String("investigator"),
		schema.Time("investigationStartDate"),
		schema.Time("investigationEndDate"),
		schema.String("investigationNotes"),
		schema.String("findings"),
		schema.String("rootCause"),
		schema.String("correctiveActions"),
		schema.Bool("headOfficeNotified").WithDefault(false),
		schema.Time("headOfficeNotifiedDate"),
		schema.String("headOfficeResponse"),
		schema.Bool("regulatoryReportRequired").WithDefault(false),
		schema.Bool("regulatoryReportSubmitted").WithDefault(false),
		schema.Time("regulatoryReportDate"),
		schema.Time("submittedAt"),
		schema.Time("closedAt"),
	}
	fields = append(fields, actionFields()...)
	fields = append(fields, sharingFields()...)

	active := []string{OccurrenceReported, OccurrenceUnderInvestigation, OccurrenceInvestigationComplete}
	return &schema.Kind{
		Name:       "dangerous-occurrence",
		Title:      "Dangerous occurrence",
		Collection: "dangerous_occurrences",
		DateField:  "dateTime",
		Fields:     fields,
		Lifecycle: schema.Lifecycle{
			States: []string{OccurrenceDraft, OccurrenceReported, OccurrenceUnderInvestigation,
				OccurrenceInvestigationComplete, OccurrenceClosed},
			Initial: OccurrenceDraft,
			Draft:   OccurrenceDraft,
			Entry:   []string{OccurrenceReported},
			Actions: []schema.Action{
				{Name: "submit", From: []string{OccurrenceDraft}, To: OccurrenceReported},
				{
					Name:     "start-investigation",
					From:     []string{OccurrenceReported},
					To:       OccurrenceUnderInvestigation,
					Fields:   []string{"investigator", "investigationNotes", "investigationStartDate"},
					Requires: []string{"investigator"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["investigationRequired"] = true
						schema.Stamp(doc, "investigationStartDate", in.Now)
					},
				},
				{
					Name:     "complete-investigation",
					From:     []string{OccurrenceUnderInvestigation},
					To:       OccurrenceInvestigationComplete,
					Fields:   []string{"findings", "rootCause", "correctiveActions", "investigationEndDate", "investigationNotes"},
					Requires: []string{"findings", "rootCause", "correctiveActions"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "investigationEndDate", in.Now)
					},
				},
				assignAction("", active...),
				completeAction(),
				{Name: "close", From: active, To: OccurrenceClosed},
				flagAction("notify-head-office", "headOfficeNotified", "headOfficeNotifiedDate", "headOfficeResponse"),
				{
					Name: "submit-regulatory-report",
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["regulatoryReportRequired"] = true
						doc["regulatoryReportSubmitted"] = true
						doc["regulatoryReportDate"] = in.Now
					},
				},
				shareAction(),
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("location", "situation", "potentialConsequence", "preventiveActions"),
			schema.RequiredIf("investigator", schema.Equals(models.FieldStatus, OccurrenceUnderInvestigation), "the occurrence is under investigation"),
			schema.NotBefore("investigationEndDate", "investigationStartDate"),
			schema.RequiredWith("actionDeadline", "actionOwner"),
		},
		Derive: []schema.DeriveFunc{
			autoNotifyHeadOffice,
			autoClose(OccurrenceClosed, "closedAt"),
			stampOnStatus("submittedAt", active...),
			stampOnStatus("investigationStartDate", OccurrenceUnderInvestigation),
			stampOnStatus("investigationEndDate", OccurrenceInvestigationComplete),
			stampOnStatus("closedAt", OccurrenceClosed),
			severityLevel("severity", fourLevels),
		},
		Filters: []schema.Filter{
			schema.Exact("severity"),
			schema.Search("location"),
			schema.Flag("investigationRequired"),
			schema.Flag("headOfficeNotified"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("severity", severities...),
				repository.CountIf("investigationRequired", repository.Eq("investigationRequired", true)),
				repository.CountIf("headOfficeNotified", repository.Eq("headOfficeNotified", true)),
				repository.CountIf("regulatoryPending", repository.Eq("regulatoryReportSubmitted", false)),
			)...),
			countBy("bySeverity", "severity"),
		},
		Reports: []schema.Report{
			listReport("investigations/active", repository.Sort{Field: "investigationStartDate"}, noNow(
				repository.Eq(models.FieldStatus, OccurrenceUnderInvestigation),
			)),
			overdueActions(OccurrenceClosed),
			listReport("regulatory/pending", repository.Sort{Field: "dateTime"}, func(time.Time) []repository.Cond {
				return []repository.Cond{
					repository.Eq("regulatoryReportRequired", true),
					repository.Ne("regulatoryReportSubmitted", true),
				}
			}),
		},
		Indexes: [][]string{{"projectId", "dateTime"}, {"status", "severity"}, {"actionDeadline"}},
	}
}

// autoNotifyHeadOffice flags head office the first time an investigation
// is required. An existing notification keeps its date.
func autoNotifyHeadOffice(doc models.Document, env schema.DeriveEnv) {
	if doc.Bool("investigationRequired") && !doc.Bool("headOfficeNotified") {
		doc["headOfficeNotified"] = true
		doc["headOfficeNotifiedDate"] = env.Now
	}
}
