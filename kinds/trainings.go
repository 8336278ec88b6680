package kinds

import (
	"context"
	"math"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Training statuses shared by daily training, PEP talks and special
// training.
const (
	TrainingDraft     = "draft"
	TrainingScheduled = "scheduled"
	TrainingCompleted = "completed"
	TrainingCancelled = "cancelled"
)

// training is the common shape of the topic/trainer/key-points sessions.
func training(name, title, collection, initial string, extra ...schema.Field) *schema.Kind {
	fields := []schema.Field{
		schema.Time("date"),
		schema.String("topic"),
		schema.Int("duration"),
		schema.Float("durationHours").Derived(),
		schema.String("trainer"),
		schema.Int("attendeesCount"),
		schema.Strings("keyPoints"),
		schema.Int("keyPointsCount").Derived(),
		schema.Strings("photos"),
		schema.String("notes"),
		schema.Time("completedAt"),
	}
	fields = append(fields, extra...)

	return &schema.Kind{
		Name:       name,
		Title:      title,
		Collection: collection,
		DateField:  "date",
		Fields:     fields,
		Lifecycle: schema.Lifecycle{
			States:  []string{TrainingDraft, TrainingScheduled, TrainingCompleted, TrainingCancelled},
			Initial: initial,
			Draft:   TrainingDraft,
			Entry:   []string{TrainingCompleted, TrainingScheduled},
			Actions: []schema.Action{
				{Name: "schedule", From: []string{TrainingDraft}, To: TrainingScheduled},
				{Name: "complete", From: []string{TrainingDraft, TrainingScheduled}, To: TrainingCompleted},
				{
					Name:   "cancel",
					From:   []string{TrainingDraft, TrainingScheduled},
					To:     TrainingCancelled,
					Fields: []string{"notes"},
				},
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("topic", "duration", "trainer", "attendeesCount"),
			schema.AtLeast("duration", 1),
			schema.NonNegative("attendeesCount"),
			schema.NonEmptyList("keyPoints", "At least one key point is required"),
			schema.When(schema.Equals(models.FieldStatus, TrainingCompleted), schema.NotInFuture("date")),
		},
		Derive: []schema.DeriveFunc{
			trainingDerived,
			stampOnStatus("completedAt", TrainingCompleted),
		},
		Filters: []schema.Filter{
			schema.Search("topic"),
			schema.Search("trainer"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf(TrainingCompleted, repository.Eq(models.FieldStatus, TrainingCompleted)),
				repository.CountIf(TrainingScheduled, repository.Eq(models.FieldStatus, TrainingScheduled)),
				repository.Sum("totalAttendees", "attendeesCount"),
				repository.Sum("totalDuration", "duration"),
				repository.Avg("avgDuration", "duration"),
				repository.Avg("avgAttendees", "attendeesCount"),
			),
		},
		Reports: []schema.Report{
			breakdownReport("topics/popular", "topic",
				repository.Sum("totalAttendees", "attendeesCount"),
				repository.Avg("avgDuration", "duration"),
			),
		},
		Indexes: [][]string{{"projectId", "date"}, {"topic", "date"}, {"trainer", "date"}},
	}
}

func trainingDerived(doc models.Document, env schema.DeriveEnv) {
	if doc.Has("duration") {
		doc["durationHours"] = math.Round(float64(doc.Int("duration"))/60*100) / 100
	}
	doc["keyPointsCount"] = int64(len(doc.Strings("keyPoints")))
}

// DailyTraining is logged after the session, so it has no draft state.
func DailyTraining() *schema.Kind {
	k := training("daily-training", "Daily training", "daily_trainings", TrainingCompleted)
	k.Lifecycle = schema.Lifecycle{
		States:  []string{TrainingScheduled, TrainingCompleted, TrainingCancelled},
		Initial: TrainingCompleted,
		Entry:   []string{TrainingCompleted, TrainingScheduled},
		Actions: []schema.Action{
			{Name: "complete", From: []string{TrainingScheduled}, To: TrainingCompleted},
			{
				Name:   "cancel",
				From:   []string{TrainingScheduled},
				To:     TrainingCancelled,
				Fields: []string{"notes"},
			},
		},
	}
	return k
}

func PEPTalk() *schema.Kind {
	return training("pep-talk", "PEP talk", "pep_talks", TrainingDraft)
}

func SpecialTraining() *schema.Kind {
	k := training("special-training", "Special training", "special_trainings", TrainingDraft,
		schema.Bool("certificationsIssued").WithDefault(false),
		schema.Bool("permitRequired").WithDefault(false),
	)
	k.Filters = append(k.Filters, schema.Flag("certificationsIssued"), schema.Flag("permitRequired"))
	k.Stats[0].Agg.Metrics = append(k.Stats[0].Agg.Metrics,
		repository.CountIf("certificationTrainings", repository.Eq("certificationsIssued", true)),
		repository.CountIf("permitTrainings", repository.Eq("permitRequired", true)),
	)
	k.Reports = []schema.Report{
		breakdownReport("topics/popular", "topic",
			repository.Sum("totalAttendees", "attendeesCount"),
			repository.Avg("avgDuration", "duration"),
			repository.CountIf("certifications", repository.Eq("certificationsIssued", true)),
			repository.CountIf("permits", repository.Eq("permitRequired", true)),
		),
		{Path: "certifications/summary", Run: certificationSummary},
	}
	k.Indexes = append(k.Indexes, []string{"certificationsIssued"}, []string{"permitRequired"})
	return k
}

// certificationSummary totals the certification-issuing sessions and the
// topics they covered.
func certificationSummary(ctx context.Context, rc schema.ReportContext) (any, error) {
	rows, err := rc.Aggregate(ctx, repository.Aggregation{
		Match: repository.Where(repository.Eq("certificationsIssued", true)),
		Metrics: []repository.Metric{
			repository.Count("totalCertificationTrainings"),
			repository.Sum("totalCertifiedAttendees", "attendeesCount"),
			repository.Avg("avgCertificationDuration", "duration"),
		},
	})
	if err != nil {
		return nil, err
	}
	summary := models.Document{}
	if len(rows) > 0 {
		summary = rows[0]
		delete(summary, "_id")
	}
	topics, err := rc.Aggregate(ctx, repository.Aggregation{
		Match:   repository.Where(repository.Eq("certificationsIssued", true)),
		GroupBy: "topic",
		Metrics: []repository.Metric{repository.Count("count")},
		SortBy:  "_id",
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		if s, ok := t["_id"].(string); ok {
			names = append(names, s)
		}
	}
	summary["topics"] = names
	return summary, nil
}
