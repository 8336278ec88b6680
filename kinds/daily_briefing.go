package kinds

import (
	"context"
	"strconv"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Daily briefing (toolbox talk) statuses.
const (
	BriefingDraft     = "draft"
	BriefingSubmitted = "submitted"
	BriefingApproved  = "approved"
	BriefingRejected  = "rejected"
)

// CustomTopic is the topic category that asks for free-text customTopic.
const CustomTopic = "Custom Topic"

var briefingTopics = []string{
	"Working at Height",
	"Electrical Safety",
	"Excavation Safety",
	"PPE Usage",
	"Manual Handling",
	"Hot Work Safety",
	"Confined Space Entry",
	"Scaffolding Safety",
	"Crane Operations",
	"Fall Protection",
	"Fire Safety",
	"Chemical Handling",
	"Machine Guarding",
	"Housekeeping",
	"Emergency Procedures",
	CustomTopic,
}

var attendanceMethods = []models.Document{
	{"value": "digital", "label": "Digital Signatures (Capture on mobile)", "description": "Capture digital signatures from attendees"},
	{"value": "photo", "label": "Photo Upload (Group photo with workers)", "description": "Upload group photo with workers"},
	{"value": "manual", "label": "Manual List (Names comma-separated)", "description": "Enter names separated by commas"},
}

func DailyBriefing() *schema.Kind {
	return &schema.Kind{
		Name:       "daily-briefing",
		Title:      "Daily briefing",
		Collection: "daily_briefings",
		DateField:  "dateTime",
		Fields: []schema.Field{
			schema.String("talkNumber"),
			schema.Time("dateTime"),
			schema.String("location"),
			schema.String("conductedBy"),
			schema.Enum("duration", "15", "30", "45"),
			schema.Int("durationMinutes").Derived(),
			schema.Enum("topicCategory", briefingTopics...),
			schema.String("customTopic"),
			schema.String("finalTopic").Derived(),
			schema.Int("attendeesCount"),
			schema.Enum("attendanceMethod", "digital", "photo", "manual"),
			schema.Objects("digitalSignatures",
				schema.String("name"),
				schema.String("signature"),
				schema.Time("timestamp"),
			),
			schema.Strings("attendancePhotos"),
			schema.String("attendeesList"),
			schema.Strings("keyPoints"),
			schema.String("hazardsDiscussed"),
			schema.String("controlMeasures"),
			schema.String("questionsRaised"),
			schema.Strings("photos"),
			schema.String("rejectionReason"),
			schema.String("approvedBy"),
			schema.Time("approvedAt"),
			schema.Time("submittedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{BriefingDraft, BriefingSubmitted, BriefingApproved, BriefingRejected},
			Initial: BriefingDraft,
			Draft:   BriefingDraft,
			Entry:   []string{BriefingSubmitted},
			Actions: []schema.Action{
				{Name: "submit", From: []string{BriefingDraft, BriefingRejected}, To: BriefingSubmitted},
				{
					Name: "approve",
					From: []string{BriefingSubmitted},
					To:   BriefingApproved,
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.StampActor(doc, "approvedBy", in.Actor)
						doc["approvedAt"] = in.Now
					},
				},
				{
					Name:   "reject",
					From:   []string{BriefingSubmitted},
					To:     BriefingRejected,
					Fields: []string{"rejectionReason"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						if r := in.Payload.String("reason"); r != "" {
							doc["rejectionReason"] = r
						}
					},
				},
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("location", "conductedBy", "duration", "topicCategory",
				"attendeesCount", "attendanceMethod"),
			schema.OnSubmit(
				schema.AtLeast("attendeesCount", 1),
				schema.RequiredIf("customTopic", schema.Equals("topicCategory", CustomTopic), "topic category is Custom Topic"),
				schema.When(schema.Equals("attendanceMethod", "digital"),
					schema.NonEmptyList("digitalSignatures", "At least one digital signature is required when attendance method is digital"),
					schema.Each("digitalSignatures", schema.Required("name", "signature")),
				),
				schema.When(schema.Equals("attendanceMethod", "photo"),
					schema.NonEmptyList("attendancePhotos", "At least one attendance photo is required when attendance method is photo"),
				),
				schema.RequiredIf("attendeesList", schema.Equals("attendanceMethod", "manual"), "attendance method is manual"),
			),
			schema.NonEmptyList("keyPoints", "At least one key point is required"),
			schema.NonEmptyList("photos", "At least one photo is required"),
		},
		Derive: []schema.DeriveFunc{
			func(doc models.Document, env schema.DeriveEnv) {
				if n, err := strconv.Atoi(doc.String("duration")); err == nil {
					doc["durationMinutes"] = int64(n)
				}
				if doc.String("topicCategory") == CustomTopic {
					doc["finalTopic"] = doc.String("customTopic")
				} else if doc.Present("topicCategory") {
					doc["finalTopic"] = doc.String("topicCategory")
				}
				for _, sig := range doc.Objects("digitalSignatures") {
					schema.Stamp(sig, "timestamp", env.Now)
				}
			},
			stampOnStatus("submittedAt", BriefingSubmitted, BriefingApproved, BriefingRejected),
		},
		HumanID: &schema.HumanID{Field: "talkNumber", Generate: yearSequence("TBT", 3, 1000)},
		Filters: []schema.Filter{
			schema.Exact("talkNumber"),
			schema.Search("location"),
			schema.Search("conductedBy"),
			schema.Exact("topicCategory"),
			schema.Exact("attendanceMethod"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf(BriefingSubmitted, repository.Eq(models.FieldStatus, BriefingSubmitted)),
				repository.CountIf(BriefingApproved, repository.Eq(models.FieldStatus, BriefingApproved)),
				repository.CountIf(BriefingRejected, repository.Eq(models.FieldStatus, BriefingRejected)),
				repository.Sum("totalAttendees", "attendeesCount"),
				repository.Sum("totalDuration", "durationMinutes"),
				repository.Avg("avgDuration", "durationMinutes"),
			),
			countBy("attendanceMethods", "attendanceMethod"),
			{Name: "popularTopics", Agg: repository.Aggregation{
				GroupBy:  "finalTopic",
				Metrics:  []repository.Metric{repository.Count("count"), repository.Sum("totalAttendees", "attendeesCount")},
				SortBy:   "count",
				SortDesc: true,
				Limit:    10,
			}},
		},
		Reports: []schema.Report{
			staticReport("topics/categories", briefingTopics),
			staticReport("attendance/methods", attendanceMethods),
		},
		Indexes: [][]string{{"dateTime"}, {"location"}, {"topicCategory"}, {"status"}, {"createdBy"}},
	}
}

// staticReport serves a fixed option list.
func staticReport(path string, data any) schema.Report {
	return schema.Report{Path: path, Run: func(context.Context, schema.ReportContext) (any, error) {
		return data, nil
	}}
}
