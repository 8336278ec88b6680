package database

import (
	"testing"

	"hseproject/kinds"
	"hseproject/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexByName(t *testing.T, name string, kindIndexes map[string]bson.D) bson.D {
	t.Helper()
	keys, ok := kindIndexes[name]
	if !ok {
		t.Fatalf("index %s missing; have %v", name, kindIndexes)
	}
	return keys
}

func TestIndexModels(t *testing.T) {
	for _, route := range kinds.All() {
		kind := route.Kind
		t.Run(kind.Name, func(t *testing.T) {
			got := map[string]bson.D{}
			partial := map[string]any{}
			for _, m := range IndexModels(kind) {
				name := *m.Options.Name
				if _, dup := got[name]; dup {
					t.Errorf("index %s declared twice", name)
				}
				got[name] = m.Keys.(bson.D)
				if m.Options.Unique != nil && *m.Options.Unique {
					partial[name] = m.Options.PartialFilterExpression
				}
			}

			keys := indexByName(t, indexName([]string{models.FieldProjectID, kind.DefaultSort()}, false), got)
			if keys[0].Key != models.FieldProjectID || keys[0].Value != 1 {
				t.Errorf("project index keys = %v", keys)
			}
			indexByName(t, indexName([]string{kind.StatusField(), kind.DefaultSort()}, false), got)

			for _, fields := range kind.UniqueKeys() {
				name := indexName(fields, true)
				indexByName(t, name, got)
				filter, ok := partial[name].(bson.M)
				if !ok {
					t.Errorf("%s has no partial filter", name)
					continue
				}
				if _, ok := filter[fields[0]]; !ok {
					t.Errorf("%s partial filter = %v", name, filter)
				}
			}
		})
	}
}

func TestUniqueIndexNames(t *testing.T) {
	names := func(kindIndexes []mongo.IndexModel) map[string]bool {
		out := map[string]bool{}
		for _, m := range kindIndexes {
			out[*m.Options.Name] = true
		}
		return out
	}

	if !names(IndexModels(kinds.DailyBriefing()))["uniq_talkNumber"] {
		t.Error("daily briefing has no unique talk number index")
	}
	if !names(IndexModels(kinds.InspectionCategory()))["uniq_projectId_code"] {
		t.Error("inspection category has no unique code per project index")
	}
	if got := indexName([]string{"checklistItems.id"}, false); got != "idx_checklistItems_id" {
		t.Errorf("nested index name = %s", got)
	}
}
