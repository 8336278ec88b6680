package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"hseproject/models"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo RecordRepository, docs ...models.Document) {
	t.Helper()
	for _, doc := range docs {
		if err := repo.Insert(context.Background(), doc); err != nil {
			t.Fatalf("insert %s: %v", doc.ID(), err)
		}
	}
}

func sampleRecords() []models.Document {
	return []models.Document{
		{"id": "a", "projectId": "p1", "status": "open", "severity": "high", "score": int64(80), "date": day,
			"tags": []string{"scaffold", "height"},
			"items": []models.Document{{"status": "pass"}, {"status": "fail"}}},
		{"id": "b", "projectId": "p1", "status": "closed", "severity": "low", "score": int64(60), "date": day.AddDate(0, 0, 1),
			"tags": []string{"electrical"}},
		{"id": "c", "projectId": "p2", "status": "open", "severity": "high", "date": day.AddDate(0, 0, 1),
			"items": []models.Document{{"status": "pass"}}},
	}
}

func TestMemoryInsertAndUniqueKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Records("things", []string{"code"}, []string{"projectId", "name"})
	seed(t, repo,
		models.Document{"id": "1", "code": "X-1", "projectId": "p1", "name": "Gate"},
		models.Document{"id": "2", "projectId": "p1"},
		models.Document{"id": "3", "projectId": "p1"},
	)

	cases := map[string]models.Document{
		"same id":          {"id": "1"},
		"same code":        {"id": "4", "code": "X-1"},
		"same project key": {"id": "5", "projectId": "p1", "name": "Gate"},
	}
	for name, doc := range cases {
		if err := repo.Insert(ctx, doc); !errors.Is(err, ErrDuplicate) {
			t.Errorf("%s: expected ErrDuplicate, got %v", name, err)
		}
	}
	if err := repo.Insert(ctx, models.Document{"id": "6", "projectId": "p2", "name": "Gate"}); err != nil {
		t.Errorf("other project: %v", err)
	}
	if err := repo.Replace(ctx, "2", models.Document{"code": "X-1"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("replace: expected ErrDuplicate, got %v", err)
	}
	if err := repo.Replace(ctx, "1", models.Document{"code": "X-1", "name": "Gate 2"}); err != nil {
		t.Errorf("replace own key: %v", err)
	}
}

func TestMemoryStoreSharesCollections(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store.Records("things"), models.Document{"id": "1"})
	if _, err := store.Records("things").FindByID(context.Background(), "1"); err != nil {
		t.Errorf("second handle: %v", err)
	}
	if _, err := store.Records("other").FindByID(context.Background(), "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Records("things")
	doc := models.Document{"id": "1", "tags": []string{"a"}}
	seed(t, repo, doc)
	doc["tags"] = []string{"changed"}

	got, err := repo.FindByID(ctx, "1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got["extra"] = true
	again, _ := repo.FindByID(ctx, "1")
	if again.Has("extra") || again.Strings("tags")[0] != "a" {
		t.Errorf("stored document was mutated: %v", again)
	}
}

func TestMemoryFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Records("things")
	seed(t, repo, sampleRecords()...)

	tests := []struct {
		name  string
		query Query
		opts  FindOptions
		want  []string
	}{
		{"all in insertion order", Query{}, FindOptions{}, []string{"a", "b", "c"}},
		{"eq", Where(Eq("projectId", "p1")), FindOptions{}, []string{"a", "b"}},
		{"list element", Where(Eq("tags", "electrical")), FindOptions{}, []string{"b"}},
		{"nested list path", Where(Eq("items.status", "fail")), FindOptions{}, []string{"a"}},
		{"ne skips any match", Where(Ne("items.status", "fail")), FindOptions{}, []string{"b", "c"}},
		{"in", Where(In("severity", "low", "medium")), FindOptions{}, []string{"b"}},
		{"contains ignores case", Where(Contains("tags", "SCAFF")), FindOptions{}, []string{"a"}},
		{"time range", Where(Gte("date", day.AddDate(0, 0, 1))), FindOptions{}, []string{"b", "c"}},
		{"exists", Where(Exists("score", false)), FindOptions{}, []string{"c"}},
		{"or", Query{Or: []Cond{Eq("projectId", "p2"), Lt("score", 70)}}, FindOptions{}, []string{"b", "c"}},
		{"sort desc with missing last", Query{}, FindOptions{Sort: []Sort{{Field: "score", Desc: true}}}, []string{"a", "b", "c"}},
		{"sort asc with tiebreak", Query{}, FindOptions{Sort: []Sort{{Field: "date"}, {Field: "id", Desc: true}}}, []string{"a", "c", "b"}},
		{"skip and limit", Query{}, FindOptions{Skip: 1, Limit: 1}, []string{"b"}},
		{"skip past end", Query{}, FindOptions{Skip: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := repo.Find(ctx, tt.query, tt.opts)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if len(docs) != len(tt.want) {
				t.Fatalf("got %d docs, want %v", len(docs), tt.want)
			}
			for i, id := range tt.want {
				if docs[i].ID() != id {
					t.Errorf("docs[%d] = %s, want %s", i, docs[i].ID(), id)
				}
			}
		})
	}
}

func TestMemoryIncrementAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Records("things")
	seed(t, repo, models.Document{"id": "1", "likes": int64(0)})

	for i := 0; i < 3; i++ {
		if _, err := repo.Increment(ctx, "1", "likes", 1); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	doc, _ := repo.FindByID(ctx, "1")
	if doc.Int("likes") != 3 {
		t.Errorf("likes = %d", doc.Int("likes"))
	}
	if _, err := repo.Increment(ctx, "missing", "likes", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n, _ := repo.Count(ctx, Query{}); n != 0 {
		t.Errorf("count = %d", n)
	}
}

func TestMemoryAggregate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Records("things")
	seed(t, repo, sampleRecords()...)

	rows, err := repo.Aggregate(ctx, Aggregation{
		GroupBy:  "severity",
		Metrics:  []Metric{Count("count"), Avg("avgScore", "score"), CountIf("open", Eq("status", "open"))},
		SortBy:   "count",
		SortDesc: true,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(rows) != 2 || rows[0]["_id"] != "high" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0]["count"] != float64(2) || rows[0]["open"] != float64(2) || rows[0]["avgScore"] != float64(80) {
		t.Errorf("high row = %v", rows[0])
	}

	folded, err := repo.Aggregate(ctx, Aggregation{
		Match:   Where(Eq("projectId", "p2")),
		Metrics: []Metric{Count("total"), Sum("score", "score"), Max("maxScore", "score")},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(folded) != 1 || folded[0]["total"] != float64(1) || folded[0]["score"] != float64(0) || folded[0]["maxScore"] != nil {
		t.Errorf("folded = %v", folded)
	}

	unwound, err := repo.Aggregate(ctx, Aggregation{
		Unwind:  "items",
		GroupBy: "items.status",
		Metrics: []Metric{Count("count")},
		SortBy:  "_id",
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(unwound) != 2 || unwound[0]["_id"] != "fail" || unwound[1]["count"] != float64(2) {
		t.Errorf("unwound = %v", unwound)
	}

	byDay, err := repo.Aggregate(ctx, Aggregation{GroupBy: "date", Bucket: BucketDay, Metrics: []Metric{Count("count")}, SortBy: "_id"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(byDay) != 2 || byDay[1]["_id"] != "2026-03-02" || byDay[1]["count"] != float64(2) {
		t.Errorf("byDay = %v", byDay)
	}
}
