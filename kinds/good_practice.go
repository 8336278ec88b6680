package kinds

import (
	"context"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Good practice statuses.
const (
	PracticeSubmitted   = "submitted"
	PracticeUnderReview = "under_review"
	PracticeApproved    = "approved"
	PracticeAwarded     = "awarded"
	PracticeRejected    = "rejected"
)

var practiceCategories = []string{"safety", "environmental", "efficiency", "innovation", "teamwork", "leadership"}

func GoodPractice() *schema.Kind {
	fields := []schema.Field{
		schema.Time("date"),
		schema.String("title"),
		schema.String("description"),
		schema.Bool("awardable").WithDefault(false),
		schema.String("personsCredited"),
		schema.Strings("photos"),
		schema.Enum("category", practiceCategories...).WithDefault("safety"),
		schema.Enum("impactLevel", "local", "project_wide", "company_wide", "industry_wide").WithDefault("local"),
		schema.String("reviewNotes"),
		schema.String("reviewedBy"),
		schema.Time("reviewedAt"),
		schema.Enum("awardType", "recognition", "monetary", "certificate", "trophy", "other").WithDefault("recognition"),
		schema.Float("awardValue").WithDefault(float64(0)),
		schema.Time("awardDate"),
		schema.String("awardNotes"),
		schema.Strings("tags"),
		schema.Int("likes").Counter(),
		schema.Int("views").Counter(),
		schema.Bool("isApproved").Derived(),
	}
	fields = append(fields, sharingFields()...)

	review := []string{PracticeSubmitted, PracticeUnderReview}
	return &schema.Kind{
		Name:       "good-practice",
		Title:      "Good practice",
		Collection: "good_practices",
		DateField:  "date",
		Fields:     fields,
		Lifecycle: schema.Lifecycle{
			States:  []string{PracticeSubmitted, PracticeUnderReview, PracticeApproved, PracticeAwarded, PracticeRejected},
			Initial: PracticeSubmitted,
			Entry:   []string{PracticeSubmitted},
			Actions: []schema.Action{
				{
					Name:   "start-review",
					From:   []string{PracticeSubmitted},
					To:     PracticeUnderReview,
					Fields: []string{"reviewNotes"},
				},
				reviewDecision("approve", PracticeApproved, review),
				reviewDecision("reject", PracticeRejected, review),
				{
					Name:     "award",
					From:     []string{PracticeSubmitted, PracticeUnderReview, PracticeApproved},
					To:       PracticeAwarded,
					Fields:   []string{"awardType", "awardValue", "awardNotes"},
					Requires: []string{"awardType"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["awardDate"] = in.Now
					},
				},
				shareAction(),
			},
		},
		Rules: []schema.Rule{
			schema.Required("title", "description"),
			schema.MaxItems("photos", MaxPhotos),
			schema.NonNegative("awardValue", "likes", "views"),
			schema.RequiredIf("reviewedBy", schema.OneOf(models.FieldStatus, PracticeApproved, PracticeRejected),
				"the practice is approved or rejected"),
		},
		Derive: []schema.DeriveFunc{
			dedupeTags,
			autoShareApproved,
			stampOnStatus("reviewedAt", PracticeApproved, PracticeRejected),
			stampOnStatus("awardDate", PracticeAwarded),
			func(doc models.Document, env schema.DeriveEnv) {
				s := doc.String(models.FieldStatus)
				doc["isApproved"] = s == PracticeApproved || s == PracticeAwarded
			},
		},
		Filters: []schema.Filter{
			schema.Exact("category"),
			schema.Exact("impactLevel"),
			schema.Flag("awardable"),
			schema.Exact("tags").As("tag"),
			schema.Search("title"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("category", practiceCategories...),
				repository.CountIf("awardable", repository.Eq("awardable", true)),
				repository.CountIf("sharedWithTeam", repository.Eq("sharedWithTeam", true)),
				repository.Sum("totalLikes", "likes"),
				repository.Sum("totalViews", "views"),
			)...),
			countBy("byImpactLevel", "impactLevel"),
		},
		Reports: []schema.Report{
			listReport("awards/pending", repository.Sort{Field: "date", Desc: true}, noNow(
				repository.Eq("awardable", true),
				repository.In(models.FieldStatus, PracticeSubmitted, PracticeUnderReview),
			)),
			{Path: "popular/top", Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
				return rc.Find(ctx, nil, []repository.Sort{{Field: "likes", Desc: true}, {Field: "views", Desc: true}},
					rc.Int("limit", 10, 100))
			}},
			breakdownReport("categories/breakdown", "category",
				repository.Avg("avgLikes", "likes"),
				repository.Avg("avgViews", "views"),
				repository.CountIf("awardable", repository.Eq("awardable", true)),
				repository.CountIf(PracticeApproved, repository.Eq(models.FieldStatus, PracticeApproved)),
				repository.CountIf(PracticeAwarded, repository.Eq(models.FieldStatus, PracticeAwarded)),
			),
		},
		Indexes: [][]string{{"projectId", "date"}, {"status"}, {"category"}, {"awardable"}, {"impactLevel"}, {"tags"}},
	}
}

// reviewDecision is approve or reject: both need a reviewer.
func reviewDecision(name, to string, from []string) schema.Action {
	return schema.Action{
		Name:     name,
		From:     from,
		To:       to,
		Fields:   []string{"reviewedBy", "reviewNotes"},
		Requires: []string{"reviewedBy"},
		Apply: func(doc models.Document, in schema.ActionInput) {
			doc["reviewedAt"] = in.Now
		},
	}
}

// autoShareApproved shares an approved practice with the team unless it
// was shared already.
func autoShareApproved(doc models.Document, env schema.DeriveEnv) {
	if doc.String(models.FieldStatus) != PracticeApproved || doc.Bool("sharedWithTeam") {
		return
	}
	doc["sharedWithTeam"] = true
	doc["sharedDate"] = env.Now
	if !doc.Present("sharedNotes") {
		doc["sharedNotes"] = "Automatically shared upon approval"
	}
}

func dedupeTags(doc models.Document, env schema.DeriveEnv) {
	tags := doc.Strings("tags")
	if tags == nil {
		return
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	doc["tags"] = out
}
