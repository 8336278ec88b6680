package kinds

import (
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// First aid case statuses.
const (
	FirstAidDraft        = "draft"
	FirstAidReported     = "reported"
	FirstAidInvestigated = "investigated"
	FirstAidClosed       = "closed"
)

func FirstAid() *schema.Kind {
	return &schema.Kind{
		Name:       "first-aid",
		Title:      "First aid case",
		Collection: "first_aid_cases",
		DateField:  "dateTime",
		Fields: []schema.Field{
			schema.Time("dateTime"),
			schema.String("victimName"),
			schema.String("victimEmpId"),
			schema.String("injuryType"),
			schema.String("cause"),
			schema.String("treatmentGiven"),
			schema.Bool("transportToHospital").WithDefault(false),
			schema.String("hospitalName"),
			schema.String("hospitalDetails"),
			schema.Strings("witnessNames"),
			schema.Strings("photos"),
			schema.String("investigationNotes"),
			schema.Bool("followUpRequired").WithDefault(false),
			schema.Time("followUpDate"),
			schema.String("followUpNotes"),
			schema.Enum("injurySeverity", "minor", "serious").Derived(),
			schema.Int("witnessCount").Derived(),
			schema.Time("closedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{FirstAidDraft, FirstAidReported, FirstAidInvestigated, FirstAidClosed},
			Initial: FirstAidDraft,
			Draft:   FirstAidDraft,
			Entry:   []string{FirstAidReported},
			Actions: []schema.Action{
				{Name: "submit", From: []string{FirstAidDraft}, To: FirstAidReported},
				{
					Name:   "investigate",
					From:   []string{FirstAidReported},
					To:     FirstAidInvestigated,
					Fields: []string{"investigationNotes"},
				},
				{
					Name:   "close",
					From:   []string{FirstAidReported, FirstAidInvestigated},
					To:     FirstAidClosed,
					Fields: []string{"followUpNotes"},
				},
				{
					Name:    "schedule-follow-up",
					Fields:  []string{"followUpDate", "followUpNotes"},
					Payload: []string{"followUpDate"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["followUpRequired"] = true
					},
				},
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("victimName", "victimEmpId", "injuryType", "cause", "treatmentGiven"),
			schema.OnSubmit(
				schema.RequiredIf("hospitalName", schema.IsTrue("transportToHospital"), "the victim was transported to hospital"),
			),
			schema.RequiredIf("followUpDate", schema.IsTrue("followUpRequired"), "follow-up is required"),
			schema.MaxItems("photos", MaxPhotos),
		},
		Derive: []schema.DeriveFunc{
			func(doc models.Document, env schema.DeriveEnv) {
				if doc.Bool("transportToHospital") {
					doc["injurySeverity"] = "serious"
				} else {
					doc["injurySeverity"] = "minor"
				}
				doc["witnessCount"] = int64(len(doc.Strings("witnessNames")))
			},
			stampOnStatus("closedAt", FirstAidClosed),
		},
		Filters: []schema.Filter{
			schema.Exact("injuryType"),
			schema.Search("victimName"),
			schema.Exact("victimEmpId"),
			schema.Flag("transportToHospital"),
			schema.Flag("followUpRequired"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf("hospitalCases", repository.Eq("transportToHospital", true)),
				repository.CountIf("followUpsRequired", repository.Eq("followUpRequired", true)),
				repository.CountIf("closed", repository.Eq(models.FieldStatus, FirstAidClosed)),
			),
			countBy("byInjuryType", "injuryType"),
		},
		Reports: []schema.Report{
			breakdownReport("injury-types/popular", "injuryType",
				repository.CountIf("hospitalCases", repository.Eq("transportToHospital", true))),
			listReport("follow-up/due", repository.Sort{Field: "followUpDate"}, func(now time.Time) []repository.Cond {
				return []repository.Cond{
					repository.Eq("followUpRequired", true),
					repository.Lte("followUpDate", now),
					repository.Ne(models.FieldStatus, FirstAidClosed),
				}
			}),
		},
		Indexes: [][]string{{"projectId", "dateTime"}, {"victimEmpId"}, {"injuryType"}, {"status"}},
	}
}
