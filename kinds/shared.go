package kinds

import (
	"context"
	"fmt"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// MaxPhotos is the usual cap on a record's photo list.
const MaxPhotos = 6

// actionFields are the corrective-action tracking fields shared by the
// incident-like kinds.
func actionFields() []schema.Field {
	return []schema.Field{
		schema.String("actionsTaken"),
		schema.String("actionOwner"),
		schema.Time("actionDeadline"),
		schema.Bool("actionCompleted").WithDefault(false),
		schema.Time("actionCompletedDate"),
		schema.String("lessonsLearned"),
	}
}

func sharingFields() []schema.Field {
	return []schema.Field{
		schema.Bool("sharedWithTeam").WithDefault(false),
		schema.Time("sharedDate"),
		schema.String("sharedNotes"),
	}
}

// assignAction requires owner and deadline together.
func assignAction(to string, from ...string) schema.Action {
	return schema.Action{
		Name:     "assign-action",
		From:     from,
		To:       to,
		Fields:   []string{"actionsTaken", "actionOwner", "actionDeadline"},
		Requires: []string{"actionOwner", "actionDeadline"},
		Apply: func(doc models.Document, in schema.ActionInput) {
			doc["actionCompleted"] = false
			doc.Delete("actionCompletedDate")
		},
	}
}

// completeAction marks the corrective action done. The parent record is
// closed by the autoClose derivation, so calling it on a closed record only
// records the extra notes.
func completeAction() schema.Action {
	return schema.Action{
		Name:   "complete-action",
		Fields: []string{"actionsTaken", "actionCompletedDate", "lessonsLearned"},
		Apply: func(doc models.Document, in schema.ActionInput) {
			doc["actionCompleted"] = true
			schema.Stamp(doc, "actionCompletedDate", in.Now)
		},
	}
}

// autoClose moves a record to its closed state once its corrective action
// is complete, whatever state it was in. Drafts stay drafts.
func autoClose(closed, closedAt string) schema.DeriveFunc {
	return func(doc models.Document, env schema.DeriveEnv) {
		if env.Draft || !doc.Bool("actionCompleted") {
			return
		}
		schema.Stamp(doc, "actionCompletedDate", env.Now)
		doc[models.FieldStatus] = closed
		if closedAt != "" {
			schema.Stamp(doc, closedAt, env.Now)
		}
	}
}

// stampOnStatus sets field the first time a record is seen in one of states.
func stampOnStatus(field string, states ...string) schema.DeriveFunc {
	return func(doc models.Document, env schema.DeriveEnv) {
		s := doc.String(models.FieldStatus)
		for _, state := range states {
			if s == state {
				schema.Stamp(doc, field, env.Now)
				return
			}
		}
	}
}

// flagAction sets a boolean flag and refreshes its timestamp on every call.
func flagAction(name, flag, dateField string, fields ...string) schema.Action {
	return schema.Action{
		Name:   name,
		Fields: fields,
		Apply: func(doc models.Document, in schema.ActionInput) {
			doc[flag] = true
			doc[dateField] = in.Now
		},
	}
}

func shareAction() schema.Action {
	return flagAction("share", "sharedWithTeam", "sharedDate", "sharedNotes")
}

// severityLevel stores the numeric rank of a severity value.
func severityLevel(field string, ranks map[string]int) schema.DeriveFunc {
	return func(doc models.Document, env schema.DeriveEnv) {
		if r, ok := ranks[doc.String(field)]; ok {
			doc["severityLevel"] = int64(r)
		} else {
			delete(doc, "severityLevel")
		}
	}
}

var fourLevels = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

// countBy is a frequency breakdown over field.
func countBy(name, field string) schema.Stat {
	return schema.Stat{Name: name, Agg: repository.Aggregation{
		GroupBy:  field,
		Metrics:  []repository.Metric{repository.Count("count")},
		SortBy:   "count",
		SortDesc: true,
	}}
}

// totals folds the whole collection into one row of conditional counts.
func totals(name string, metrics ...repository.Metric) schema.Stat {
	return schema.Stat{Name: name, Single: true, Agg: repository.Aggregation{
		Metrics: append([]repository.Metric{repository.Count("total")}, metrics...),
	}}
}

// countsOf builds one CountIf metric per value of field.
func countsOf(field string, values ...string) []repository.Metric {
	out := make([]repository.Metric, 0, len(values))
	for _, v := range values {
		out = append(out, repository.CountIf(v, repository.Eq(field, v)))
	}
	return out
}

// breakdownReport lists the most frequent values of field.
func breakdownReport(path, field string, metrics ...repository.Metric) schema.Report {
	return schema.Report{Path: path, Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
		return rc.Aggregate(ctx, repository.Aggregation{
			GroupBy:  field,
			Metrics:  append([]repository.Metric{repository.Count("count")}, metrics...),
			SortBy:   "count",
			SortDesc: true,
			Limit:    rc.Int("limit", 20, 100),
		})
	}}
}

// listReport returns records matching conds.
func listReport(path string, sort repository.Sort, conds func(now time.Time) []repository.Cond) schema.Report {
	return schema.Report{Path: path, Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
		return rc.Find(ctx, conds(rc.Now), []repository.Sort{sort}, rc.Int("limit", 50, 200))
	}}
}

// overdueActions lists records whose corrective action is past its deadline.
func overdueActions(closed string) schema.Report {
	return listReport("actions/overdue", repository.Sort{Field: "actionDeadline"}, func(now time.Time) []repository.Cond {
		return []repository.Cond{
			repository.Lt("actionDeadline", now),
			repository.Ne("actionCompleted", true),
			repository.Ne(models.FieldStatus, closed),
		}
	})
}

// trendReport buckets records by day of field over a "days" lookback.
func trendReport(path, field string, metrics ...repository.Metric) schema.Report {
	return schema.Report{Path: path, Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
		days := rc.Int("days", 30, 365)
		since := rc.Now.AddDate(0, 0, -days)
		return rc.Aggregate(ctx, repository.Aggregation{
			Match:   repository.Where(repository.Gte(field, since)),
			GroupBy: field,
			Bucket:  repository.BucketDay,
			Metrics: append([]repository.Metric{repository.Count("count")}, metrics...),
			SortBy:  "_id",
		})
	}}
}

// yearSequence renders PREFIX-YYYY-NNN style identifiers.
func yearSequence(prefix string, digits, space int) func(now time.Time, rnd func(int) int) string {
	return func(now time.Time, rnd func(int) int) string {
		return fmt.Sprintf("%s-%d-%0*d", prefix, now.Year(), digits, rnd(space))
	}
}

func attendeeFields() []schema.Field {
	return []schema.Field{
		schema.String("name"),
		schema.String("empId"),
		schema.String("contractor"),
	}
}

// noNow adapts a fixed condition list for listReport.
func noNow(conds ...repository.Cond) func(time.Time) []repository.Cond {
	return func(time.Time) []repository.Cond { return conds }
}

// addItem appends an entry built from the payload to an object list.
func addItem(name, list string, required, keys []string, defaults models.Document) schema.Action {
	return schema.Action{
		Name:    name,
		Payload: required,
		Apply: func(doc models.Document, in schema.ActionInput) {
			entry := defaults.Clone()
			if entry == nil {
				entry = models.Document{}
			}
			for _, key := range keys {
				if v, ok := in.Payload.Get(key); ok {
					entry[key] = v
				}
			}
			doc[list] = append(doc.Objects(list), entry)
		},
	}
}

// updateItem edits the entry of list whose key matches the payload's
// param. update runs after the payload keys are copied.
func updateItem(name, list, param, key string, keys []string, update func(item models.Document, in schema.ActionInput)) schema.Action {
	find := func(doc models.Document, in schema.ActionInput) models.Document {
		want := in.Payload.String(param)
		for _, item := range doc.Objects(list) {
			if want != "" && item.String(key) == want {
				return item
			}
		}
		return nil
	}
	return schema.Action{
		Name:    name,
		Payload: []string{param},
		Check: func(doc models.Document, in schema.ActionInput) error {
			if find(doc, in) == nil {
				return fmt.Errorf("%s %s %q: %w", list, key, in.Payload.String(param), schema.ErrItemNotFound)
			}
			return nil
		},
		Apply: func(doc models.Document, in schema.ActionInput) {
			items := doc.Objects(list)
			item := find(doc, in)
			for _, k := range keys {
				if v, ok := in.Payload.Get(k); ok {
					item[k] = v
				}
			}
			if update != nil {
				update(item, in)
			}
			doc[list] = items
		},
	}
}

// upsertItem replaces the entry of list keyed by the payload's key, or
// appends a new one.
func upsertItem(name, list, key string, required, keys []string, update func(item models.Document, in schema.ActionInput)) schema.Action {
	return schema.Action{
		Name:    name,
		Payload: append([]string{key}, required...),
		Apply: func(doc models.Document, in schema.ActionInput) {
			items := doc.Objects(list)
			want := in.Payload.String(key)
			var item models.Document
			for _, existing := range items {
				if existing.String(key) == want {
					item = existing
					break
				}
			}
			if item == nil {
				item = models.Document{key: want}
				items = append(items, item)
			}
			for _, k := range keys {
				if v, ok := in.Payload.Get(k); ok {
					item[k] = v
				}
			}
			if update != nil {
				update(item, in)
			}
			doc[list] = items
		},
	}
}
