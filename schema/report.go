package schema

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
)

// Report is a read-only view registered under the kind's route.
type Report struct {
	Path string
	Run  func(ctx context.Context, rc ReportContext) (any, error)
}

// ReportContext scopes a report to the caller's project and date filters.
type ReportContext struct {
	Kind   *Kind
	Repo   repository.RecordRepository
	Scope  repository.Query
	Params url.Values
	Now    time.Time
}

// Int reads a positive integer query parameter, clamped to max.
func (rc ReportContext) Int(name string, def, max int) int {
	n, err := strconv.Atoi(rc.Params.Get(name))
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func (rc ReportContext) Find(ctx context.Context, conds []repository.Cond, sort []repository.Sort, limit int) ([]models.Document, error) {
	docs, err := rc.Repo.Find(ctx, rc.Scope.And(conds...), repository.FindOptions{Sort: sort, Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		rc.Kind.Read(doc, rc.Now)
	}
	return docs, nil
}

func (rc ReportContext) Aggregate(ctx context.Context, agg repository.Aggregation) ([]models.Document, error) {
	agg.Match = rc.Scope.And(agg.Match.Conds...)
	return rc.Repo.Aggregate(ctx, agg)
}

func (rc ReportContext) Count(ctx context.Context, conds ...repository.Cond) (int64, error) {
	return rc.Repo.Count(ctx, rc.Scope.And(conds...))
}

// Items flattens a sub-list of the matching records into rows that carry
// the parent's id and project, keeping entries accepted by keep.
func Items(docs []models.Document, list string, keep func(parent, item models.Document) bool) []models.Document {
	rows := []models.Document{}
	for _, doc := range docs {
		for _, item := range doc.Objects(list) {
			if keep != nil && !keep(doc, item) {
				continue
			}
			row := item.Clone()
			row["recordId"] = doc.ID()
			row[models.FieldProjectID] = doc.String(models.FieldProjectID)
			rows = append(rows, row)
		}
	}
	return rows
}
