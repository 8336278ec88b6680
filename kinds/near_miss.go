package kinds

import (
	"context"
	"math"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Near miss statuses.
const (
	NearMissReported    = "reported"
	NearMissUnderReview = "under_review"
	NearMissActionTaken = "action_taken"
	NearMissClosed      = "closed"
)

var severities = []string{"low", "medium", "high", "critical"}

func NearMiss() *schema.Kind {
	fields := []schema.Field{
		schema.Time("dateTime"),
		schema.String("location"),
		schema.String("situation"),
		schema.String("potentialConsequence"),
		schema.String("preventiveActions"),
		schema.String("reportedBy"),
		schema.Enum("severity", severities...).WithDefault("medium"),
		schema.Int("severityLevel").Derived(),
		schema.Strings("photos"),
		schema.String("reviewNotes"),
		schema.String("reviewedBy"),
		schema.Time("reviewedAt"),
		schema.Time("closedAt"),
	}
	fields = append(fields, actionFields()...)
	fields = append(fields, sharingFields()...)

	open := []string{NearMissReported, NearMissUnderReview, NearMissActionTaken}
	return &schema.Kind{
		Name:       "near-miss",
		Title:      "Near miss",
		Collection: "near_misses",
		DateField:  "dateTime",
		Fields:     fields,
		Lifecycle: schema.Lifecycle{
			States:  []string{NearMissReported, NearMissUnderReview, NearMissActionTaken, NearMissClosed},
			Initial: NearMissReported,
			Entry:   []string{NearMissReported},
			Actions: []schema.Action{
				{
					Name:   "start-review",
					From:   []string{NearMissReported},
					To:     NearMissUnderReview,
					Fields: []string{"reviewNotes", "reviewedBy"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.StampActor(doc, "reviewedBy", in.Actor)
						schema.Stamp(doc, "reviewedAt", in.Now)
					},
				},
				assignAction(NearMissActionTaken, open...),
				completeAction(),
				{
					Name:   "close",
					From:   open,
					To:     NearMissClosed,
					Fields: []string{"lessonsLearned"},
				},
				shareAction(),
			},
		},
		Rules: []schema.Rule{
			schema.Required("location", "situation", "potentialConsequence", "preventiveActions", "reportedBy"),
			schema.RequiredWith("actionDeadline", "actionOwner"),
			schema.RequiredIf("actionDeadline", schema.Equals(models.FieldStatus, NearMissActionTaken), "an action has been taken"),
		},
		Derive: []schema.DeriveFunc{
			autoClose(NearMissClosed, "closedAt"),
			stampOnStatus("closedAt", NearMissClosed),
			severityLevel("severity", fourLevels),
		},
		Filters: []schema.Filter{
			schema.Exact("severity"),
			schema.Search("location"),
			schema.Search("reportedBy"),
			schema.Flag("actionCompleted"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("severity", severities...),
				repository.CountIf("actionsCompleted", repository.Eq("actionCompleted", true)),
				repository.CountIf("shared", repository.Eq("sharedWithTeam", true)),
			)...),
			countBy("bySeverity", "severity"),
		},
		Reports: []schema.Report{
			overdueActions(NearMissClosed),
			listReport("lessons/popular", repository.Sort{Field: "updatedAt", Desc: true}, noNow(
				repository.Exists("lessonsLearned", true),
			)),
			{Path: "locations/frequent", Run: frequentLocations},
		},
		Indexes: [][]string{{"projectId", "dateTime"}, {"status", "severity"}, {"actionDeadline"}},
	}
}

// frequentLocations ranks locations by report count with the mean severity
// rank of the reports filed there.
func frequentLocations(ctx context.Context, rc schema.ReportContext) (any, error) {
	metrics := countsOf("severity", severities...)
	rows, err := rc.Aggregate(ctx, repository.Aggregation{
		GroupBy:  "location",
		Metrics:  append([]repository.Metric{repository.Count("count")}, metrics...),
		SortBy:   "count",
		SortDesc: true,
		Limit:    rc.Int("limit", 10, 100),
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		var weighted float64
		for level, name := range severities {
			weighted += row.Float(name) * float64(level+1)
		}
		if n := row.Float("count"); n > 0 {
			row["avgSeverity"] = math.Round(weighted/n*100) / 100
		}
	}
	return rows, nil
}
