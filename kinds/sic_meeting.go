package kinds

import (
	"context"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// SIC meeting statuses.
const (
	MeetingDraft     = "draft"
	MeetingCompleted = "completed"
	MeetingArchived  = "archived"
)

var meetingTypes = []string{"daily", "weekly", "monthly", "special", "emergency"}

func SICMeeting() *schema.Kind {
	return &schema.Kind{
		Name:       "sic-meeting",
		Title:      "SIC meeting",
		Collection: "sic_meetings",
		DateField:  "meetingDateTime",
		Fields: []schema.Field{
			schema.Time("meetingDateTime"),
			schema.Objects("attendees", attendeeFields()...),
			schema.Strings("agendaPoints"),
			schema.String("decisions"),
			schema.String("actionOwners"),
			schema.Strings("photos"),
			schema.String("sicSignature"),
			schema.Int("meetingDuration").WithDefault(int64(0)),
			schema.Time("nextMeetingDate"),
			schema.Bool("followUpRequired").WithDefault(false),
			schema.String("followUpNotes"),
			schema.Objects("actionItems",
				schema.String("id"),
				schema.String("description"),
				schema.String("owner"),
				schema.Time("deadline"),
				schema.Enum("status", "pending", "in_progress", "completed").WithDefault("pending"),
				schema.Time("completedDate"),
				schema.String("notes"),
			).WithIDs(),
			schema.Enum("meetingType", meetingTypes...).WithDefault("daily"),
			schema.String("location"),
			schema.Int("attendeeCount").Derived(),
			schema.Int("pendingActionItems").Derived(),
			schema.Int("overdueActionItems").Derived(),
			schema.Time("archivedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{MeetingDraft, MeetingCompleted, MeetingArchived},
			Initial: MeetingCompleted,
			Draft:   MeetingDraft,
			Entry:   []string{MeetingCompleted},
			Actions: []schema.Action{
				{Name: "submit", From: []string{MeetingDraft}, To: MeetingCompleted},
				{
					Name: "archive",
					From: []string{MeetingCompleted},
					To:   MeetingArchived,
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "archivedAt", in.Now)
					},
				},
				addItem("add-action-item", "actionItems", []string{"description", "owner", "deadline"},
					[]string{"description", "owner", "deadline", "notes"}, models.Document{"status": "pending"}),
				updateItem("update-action-item", "actionItems", "actionItemId", "id",
					[]string{"status", "notes"},
					func(item models.Document, in schema.ActionInput) {
						if item.String("status") == "completed" {
							item["completedDate"] = in.Now
						}
					}),
				{
					Name:    "schedule-follow-up",
					From:    []string{MeetingDraft, MeetingCompleted},
					Fields:  []string{"nextMeetingDate", "followUpNotes"},
					Payload: []string{"nextMeetingDate"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						doc["followUpRequired"] = true
					},
				},
			},
		},
		Rules: []schema.Rule{
			schema.Each("attendees", schema.Required("name", "empId", "contractor")),
			schema.SubmitRequired("decisions", "sicSignature"),
			schema.MaxItems("photos", MaxPhotos),
			schema.Each("actionItems", schema.Required("description", "owner", "deadline")),
			schema.RequiredIf("nextMeetingDate", schema.IsTrue("followUpRequired"), "follow-up is required"),
			schema.NonNegative("meetingDuration"),
		},
		Derive: []schema.DeriveFunc{
			func(doc models.Document, env schema.DeriveEnv) {
				doc["attendeeCount"] = int64(len(doc.Objects("attendees")))
				var pending, overdue int64
				for _, item := range doc.Objects("actionItems") {
					if item.String("status") == "completed" {
						continue
					}
					pending++
					if d, ok := item.Time("deadline"); ok && d.Before(env.Now) {
						overdue++
					}
				}
				doc["pendingActionItems"] = pending
				doc["overdueActionItems"] = overdue
			},
		},
		Filters: []schema.Filter{
			schema.Exact("meetingType"),
			schema.Search("location"),
			schema.Exact("attendees.empId").As("empId"),
			schema.Flag("followUpRequired"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("meetingType", meetingTypes...),
				repository.Sum("totalAttendees", "attendeeCount"),
				repository.Avg("avgDuration", "meetingDuration"),
				repository.Sum("pendingActionItems", "pendingActionItems"),
				repository.CountIf("followUpsRequired", repository.Eq("followUpRequired", true)),
			)...),
			countBy("byType", "meetingType"),
		},
		Reports: []schema.Report{
			{Path: "action-items/pending", Run: meetingActionItems(func(item models.Document, now time.Time) bool {
				return item.String("status") != "completed"
			})},
			{Path: "action-items/overdue", Run: meetingActionItems(func(item models.Document, now time.Time) bool {
				d, ok := item.Time("deadline")
				return item.String("status") != "completed" && ok && d.Before(now)
			})},
		},
		Indexes: [][]string{{"projectId", "meetingDateTime"}, {"status"}, {"meetingType"}, {"attendees.empId"}, {"nextMeetingDate"}},
	}
}

// meetingActionItems flattens the action items of every meeting, newest
// meeting first.
func meetingActionItems(keep func(item models.Document, now time.Time) bool) func(context.Context, schema.ReportContext) (any, error) {
	return func(ctx context.Context, rc schema.ReportContext) (any, error) {
		docs, err := rc.Find(ctx, []repository.Cond{repository.Exists("actionItems", true)},
			[]repository.Sort{{Field: "meetingDateTime", Desc: true}}, 0)
		if err != nil {
			return nil, err
		}
		rows := schema.Items(docs, "actionItems", func(parent, item models.Document) bool {
			return keep(item, rc.Now)
		})
		byID := make(map[string]models.Document, len(docs))
		for _, doc := range docs {
			byID[doc.ID()] = doc
		}
		for _, row := range rows {
			if t, ok := byID[row.String("recordId")].Time("meetingDateTime"); ok {
				row["meetingDateTime"] = t
			}
		}
		return rows, nil
	}
}
