package kinds

import (
	"context"
	"math"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Safety advisory warning statuses.
const (
	WarningActive    = "active"
	WarningExpired   = "expired"
	WarningCancelled = "cancelled"
	WarningResolved  = "resolved"
)

func SafetyAdvisoryWarning() *schema.Kind {
	return &schema.Kind{
		Name:       "safety-advisory-warning",
		Title:      "Safety advisory warning",
		Collection: "safety_advisory_warnings",
		DateField:  "date",
		Fields: []schema.Field{
			schema.Time("date"),
			schema.String("warningTitle"),
			schema.Enum("severity", severities...),
			schema.Int("severityLevel").Derived(),
			schema.String("affectedArea"),
			schema.String("description"),
			schema.Time("validityFrom"),
			schema.Time("validityTo"),
			schema.Int("durationDays").Derived(),
			schema.Int("daysUntilExpiry").Derived(),
			schema.String("actionsRequired"),
			schema.String("owner"),
			schema.Strings("photos"),
			schema.Objects("acknowledgedBy",
				schema.String("user"),
				schema.String("userName"),
				schema.Time("acknowledgedAt"),
				schema.String("notes"),
			),
			schema.Int("acknowledgementCount").Derived(),
			schema.String("resolutionNotes"),
			schema.Time("resolvedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{WarningActive, WarningExpired, WarningCancelled, WarningResolved},
			Initial: WarningActive,
			Entry:   []string{WarningActive},
			Actions: []schema.Action{
				{
					Name: "acknowledge",
					From: []string{WarningActive},
					Apply: func(doc models.Document, in schema.ActionInput) {
						acknowledge(doc, in.Actor, in.Payload.String("notes"), in.Now)
					},
				},
				{
					Name:   "resolve",
					From:   []string{WarningActive, WarningExpired},
					To:     WarningResolved,
					Fields: []string{"resolutionNotes"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "resolvedAt", in.Now)
					},
				},
				{Name: "cancel", From: []string{WarningActive}, To: WarningCancelled},
				{Name: "reactivate", From: []string{WarningExpired, WarningCancelled}, To: WarningActive},
			},
		},
		Rules: []schema.Rule{
			schema.Required("warningTitle", "severity", "affectedArea", "description", "validityFrom", "actionsRequired", "owner"),
			schema.After("validityTo", "validityFrom"),
			schema.MaxItems("photos", MaxPhotos),
		},
		OnRead: []schema.ReadFunc{expireWarning},
		Stale: func(now time.Time) []repository.Cond {
			return []repository.Cond{
				repository.Eq(models.FieldStatus, WarningActive),
				repository.Lt("validityTo", now),
			}
		},
		Derive: []schema.DeriveFunc{
			severityLevel("severity", fourLevels),
			func(doc models.Document, env schema.DeriveEnv) {
				from, fok := doc.Time("validityFrom")
				to, tok := doc.Time("validityTo")
				if fok && tok {
					doc["durationDays"] = ceilDays(to.Sub(from))
				} else {
					delete(doc, "durationDays")
				}
				doc["acknowledgementCount"] = int64(len(doc.Objects("acknowledgedBy")))
			},
		},
		Filters: []schema.Filter{
			schema.Exact("severity"),
			schema.Search("affectedArea"),
			schema.Search("warningTitle"),
			schema.Exact("owner"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf("severity", severities...),
				repository.CountIf(WarningActive, repository.Eq(models.FieldStatus, WarningActive)),
				repository.CountIf(WarningExpired, repository.Eq(models.FieldStatus, WarningExpired)),
				repository.Sum("acknowledgements", "acknowledgementCount"),
			)...),
			countBy("bySeverity", "severity"),
			countBy("byArea", "affectedArea"),
		},
		Reports: []schema.Report{
			{Path: "active/current", Run: currentWarnings},
		},
		Indexes: [][]string{{"projectId", "date"}, {"severity", "status"}, {"affectedArea"}, {"validityFrom", "validityTo"}},
	}
}

// expireWarning treats an active warning whose validity window has passed
// as expired and refreshes the countdown.
func expireWarning(doc models.Document, now time.Time) {
	to, ok := doc.Time("validityTo")
	if !ok {
		delete(doc, "daysUntilExpiry")
		return
	}
	doc["daysUntilExpiry"] = ceilDays(to.Sub(now))
	if now.After(to) && doc.String(models.FieldStatus) == WarningActive {
		doc[models.FieldStatus] = WarningExpired
	}
}

// acknowledge records the actor's acknowledgement. A repeat acknowledgement
// refreshes the existing entry.
func acknowledge(doc models.Document, actor models.Actor, notes string, now time.Time) {
	items := doc.Objects("acknowledgedBy")
	var entry models.Document
	for _, item := range items {
		if item.String("user") == actor.ID {
			entry = item
			break
		}
	}
	if entry == nil {
		entry = models.Document{"user": actor.ID}
		items = append(items, entry)
	}
	if actor.Name != "" {
		entry["userName"] = actor.Name
	}
	entry["acknowledgedAt"] = now
	entry["notes"] = notes
	doc["acknowledgedBy"] = items
}

func ceilDays(d time.Duration) int64 {
	return int64(math.Ceil(d.Hours() / 24))
}

// currentWarnings lists warnings in force right now, most severe first.
func currentWarnings(ctx context.Context, rc schema.ReportContext) (any, error) {
	docs, err := rc.Find(ctx, []repository.Cond{
		repository.Eq(models.FieldStatus, WarningActive),
		repository.Lte("validityFrom", rc.Now),
	}, []repository.Sort{{Field: "severityLevel", Desc: true}, {Field: "date", Desc: true}}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.String(models.FieldStatus) == WarningActive {
			out = append(out, doc)
		}
	}
	return out, nil
}
