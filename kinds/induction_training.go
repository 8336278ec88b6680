package kinds

import (
	"math"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

func InductionTraining() *schema.Kind {
	return &schema.Kind{
		Name:       "induction-training",
		Title:      "Induction training",
		Collection: "induction_trainings",
		DateField:  "trainingDate",
		Fields: []schema.Field{
			schema.Time("trainingDate"),
			schema.Int("duration"),
			schema.Float("durationHours").Derived(),
			schema.String("contractor"),
			schema.String("trainerName"),
			schema.Int("attendanceCount"),
			schema.Objects("attendees", attendeeFields()...),
			schema.String("notes"),
			schema.Strings("photos"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{TrainingScheduled, TrainingCompleted, TrainingCancelled},
			Initial: TrainingCompleted,
			Entry:   []string{TrainingCompleted, TrainingScheduled},
			Actions: []schema.Action{
				{Name: "complete", From: []string{TrainingScheduled}, To: TrainingCompleted},
				{Name: "cancel", From: []string{TrainingScheduled}, To: TrainingCancelled, Fields: []string{"notes"}},
			},
		},
		Rules: []schema.Rule{
			schema.Required("duration", "trainerName", "attendanceCount"),
			schema.AtLeast("duration", 1),
			schema.NonNegative("attendanceCount"),
			schema.EqualLength("attendanceCount", "attendees"),
			schema.Each("attendees", schema.Required("name", "empId")),
			schema.UniqueBy("attendees", "empId"),
			schema.When(schema.Equals(models.FieldStatus, TrainingCompleted), schema.NotInFuture("trainingDate")),
		},
		Derive: []schema.DeriveFunc{
			func(doc models.Document, env schema.DeriveEnv) {
				if doc.Has("duration") {
					doc["durationHours"] = math.Round(float64(doc.Int("duration"))/60*100) / 100
				}
			},
		},
		Filters: []schema.Filter{
			schema.Search("contractor"),
			schema.Search("trainerName"),
			schema.Exact("attendees.empId").As("empId"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.Sum("totalAttendees", "attendanceCount"),
				repository.Sum("totalDuration", "duration"),
				repository.Avg("avgDuration", "duration"),
				repository.Avg("avgAttendance", "attendanceCount"),
			),
			{Name: "byContractor", Agg: repository.Aggregation{
				GroupBy:  "contractor",
				Metrics:  []repository.Metric{repository.Count("count"), repository.Sum("totalAttendees", "attendanceCount")},
				SortBy:   "count",
				SortDesc: true,
			}},
		},
		Reports: []schema.Report{
			breakdownReport("contractors/summary", "contractor", repository.Sum("totalAttendees", "attendanceCount")),
		},
		Indexes: [][]string{{"projectId", "trainingDate"}, {"contractor", "trainingDate"}, {"trainerName"}},
	}
}
