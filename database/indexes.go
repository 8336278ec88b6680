package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hseproject/models"
	"hseproject/schema"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexModels lists the indexes of one kind. Every kind gets project and
// status indexes. Unique keys back the human-readable identifiers.
func IndexModels(kind *schema.Kind) []mongo.IndexModel {
	var indexes []mongo.IndexModel
	seen := map[string]bool{}
	add := func(fields []string, unique bool) {
		name := indexName(fields, unique)
		if len(fields) == 0 || seen[name] {
			return
		}
		seen[name] = true
		keys := bson.D{}
		for _, f := range fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		opts := options.Index().SetName(name)
		if unique {
			// records without the value never collide
			opts.SetUnique(true).SetPartialFilterExpression(bson.M{fields[0]: bson.M{"$exists": true}})
		}
		indexes = append(indexes, mongo.IndexModel{Keys: keys, Options: opts})
	}

	// LIST: project scope ordered by the primary date
	// Used by: List, Stats, every report
	date := kind.DefaultSort()
	add([]string{models.FieldProjectID, date}, false)
	// FILTER: status
	add([]string{kind.StatusField(), date}, false)
	for _, fields := range kind.Indexes {
		add(fields, false)
	}
	for _, fields := range kind.UniqueKeys() {
		add(fields, true)
	}
	return indexes
}

func indexName(fields []string, unique bool) string {
	name := "idx_" + strings.ReplaceAll(strings.Join(fields, "_"), ".", "_")
	if unique {
		name = "uniq_" + strings.TrimPrefix(name, "idx_")
	}
	return name
}

// CreateIndexes creates the indexes of every kind.
func CreateIndexes(ctx context.Context, db *mongo.Database, kinds []*schema.Kind) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for _, kind := range kinds {
		indexes := IndexModels(kind)
		if len(indexes) == 0 {
			continue
		}
		if _, err := db.Collection(kind.Collection).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", kind.Name, err)
		}
	}
	return nil
}
