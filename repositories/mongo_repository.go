package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"hseproject/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore hands out collection-backed repositories. Unique constraints
// are enforced by the indexes created in package database.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Records(collection string, unique ...[]string) RecordRepository {
	return &mongoRepository{collection: s.db.Collection(collection)}
}

type mongoRepository struct {
	collection *mongo.Collection
}

func (r *mongoRepository) Collection() string {
	return r.collection.Name()
}

func (r *mongoRepository) Insert(ctx context.Context, doc models.Document) error {
	raw, err := toBSON(doc)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, raw); err != nil {
		return translate(err)
	}
	return nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (models.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&raw); err != nil {
		return nil, translate(err)
	}
	return fromBSON(raw), nil
}

func (r *mongoRepository) Replace(ctx context.Context, id string, doc models.Document) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	raw, err := toBSON(doc)
	if err != nil {
		return err
	}
	delete(raw, "_id")
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": oid}, raw)
	if err != nil {
		return translate(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return translate(err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) Find(ctx context.Context, q Query, opts FindOptions) ([]models.Document, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, s := range opts.Sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: fieldName(s.Field), Value: dir})
		}
		findOpts.SetSort(sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := r.collection.Find(ctx, buildFilter(q), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err = cursor.All(ctx, &raws); err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

func (r *mongoRepository) Count(ctx context.Context, q Query) (int64, error) {
	return r.collection.CountDocuments(ctx, buildFilter(q))
}

func (r *mongoRepository) Exists(ctx context.Context, q Query) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, buildFilter(q), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mongoRepository) Increment(ctx context.Context, id, field string, delta int64) (models.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var raw bson.M
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$inc": bson.M{field: delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&raw)
	if err != nil {
		return nil, translate(err)
	}
	return fromBSON(raw), nil
}

func (r *mongoRepository) Aggregate(ctx context.Context, agg Aggregation) ([]models.Document, error) {
	cursor, err := r.collection.Aggregate(ctx, buildPipeline(agg))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err = cursor.All(ctx, &raws); err != nil {
		return nil, err
	}
	rows := make([]models.Document, 0, len(raws))
	for _, raw := range raws {
		row := models.Document{}
		for k, v := range raw {
			row[k] = fromBSONValue(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%v: %w", err, ErrDuplicate)
	}
	return err
}

func fieldName(field string) string {
	if field == models.FieldID {
		return "_id"
	}
	return field
}

func idValue(v any) any {
	switch t := v.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(t); err == nil {
			return oid
		}
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = idValue(item)
		}
		return out
	}
	return v
}

func condFilter(c Cond) bson.M {
	field := fieldName(c.Field)
	value := c.Value
	if field == "_id" {
		value = idValue(value)
	}
	switch c.Op {
	case OpEq:
		return bson.M{field: value}
	case OpNe:
		return bson.M{field: bson.M{"$ne": value}}
	case OpIn:
		return bson.M{field: bson.M{"$in": listOf(value)}}
	case OpNin:
		return bson.M{field: bson.M{"$nin": listOf(value)}}
	case OpLt:
		return bson.M{field: bson.M{"$lt": value}}
	case OpLte:
		return bson.M{field: bson.M{"$lte": value}}
	case OpGt:
		return bson.M{field: bson.M{"$gt": value}}
	case OpGte:
		return bson.M{field: bson.M{"$gte": value}}
	case OpContains:
		s, _ := value.(string)
		return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}}
	case OpExists:
		if want, _ := value.(bool); want {
			return bson.M{field: bson.M{"$exists": true, "$ne": nil}}
		}
		return bson.M{field: nil}
	}
	return bson.M{}
}

func buildFilter(q Query) bson.M {
	filter := bson.M{}
	if len(q.Conds) > 0 {
		and := make(bson.A, 0, len(q.Conds))
		for _, c := range q.Conds {
			and = append(and, condFilter(c))
		}
		filter["$and"] = and
	}
	if len(q.Or) > 0 {
		or := make(bson.A, 0, len(q.Or))
		for _, c := range q.Or {
			or = append(or, condFilter(c))
		}
		filter["$or"] = or
	}
	return filter
}

// condExpr renders a Cond as an aggregation expression. Expressions compare
// the stored value as a whole, so list paths are not flattened here.
func condExpr(c Cond) bson.M {
	ref := "$" + fieldName(c.Field)
	switch c.Op {
	case OpNe:
		return bson.M{"$ne": bson.A{ref, c.Value}}
	case OpIn:
		return bson.M{"$in": bson.A{ref, listOf(c.Value)}}
	case OpNin:
		return bson.M{"$not": bson.A{bson.M{"$in": bson.A{ref, listOf(c.Value)}}}}
	case OpLt:
		return bson.M{"$lt": bson.A{ref, c.Value}}
	case OpLte:
		return bson.M{"$lte": bson.A{ref, c.Value}}
	case OpGt:
		return bson.M{"$gt": bson.A{ref, c.Value}}
	case OpGte:
		return bson.M{"$gte": bson.A{ref, c.Value}}
	case OpExists:
		return bson.M{"$ne": bson.A{bson.M{"$ifNull": bson.A{ref, nil}}, nil}}
	}
	return bson.M{"$eq": bson.A{ref, c.Value}}
}

func buildPipeline(agg Aggregation) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	if len(agg.Match.Conds) > 0 || len(agg.Match.Or) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: buildFilter(agg.Match)}})
	}
	if agg.Unwind != "" {
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: "$" + agg.Unwind}})
	}

	var groupID any
	if agg.GroupBy != "" {
		groupID = "$" + fieldName(agg.GroupBy)
		switch agg.Bucket {
		case BucketDay:
			groupID = bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": groupID}}
		case BucketMonth:
			groupID = bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": groupID}}
		}
	}
	group := bson.M{"_id": groupID}
	for _, m := range agg.Metrics {
		ref := "$" + m.Field
		switch m.Op {
		case MetricCount:
			group[m.Name] = bson.M{"$sum": 1}
		case MetricCountIf:
			group[m.Name] = bson.M{"$sum": bson.M{"$cond": bson.A{condExpr(*m.Where), 1, 0}}}
		case MetricSum:
			group[m.Name] = bson.M{"$sum": ref}
		case MetricAvg:
			group[m.Name] = bson.M{"$avg": ref}
		case MetricMin:
			group[m.Name] = bson.M{"$min": ref}
		case MetricMax:
			group[m.Name] = bson.M{"$max": ref}
		}
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: group}})

	if agg.SortBy != "" {
		dir := 1
		if agg.SortDesc {
			dir = -1
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: agg.SortBy, Value: dir}}}})
	}
	if agg.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: agg.Limit}})
	}
	return pipeline
}

func toBSON(doc models.Document) (bson.M, error) {
	raw := bson.M{}
	for k, v := range doc {
		if k == models.FieldID {
			continue
		}
		raw[k] = v
	}
	if id := doc.ID(); id != "" {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", id, err)
		}
		raw["_id"] = oid
	}
	return raw, nil
}

func fromBSON(raw bson.M) models.Document {
	doc := models.Document{}
	for k, v := range raw {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				doc[models.FieldID] = oid.Hex()
				continue
			}
		}
		doc[k] = fromBSONValue(v)
	}
	return doc
}

// fromBSONValue maps driver types onto the canonical Document value types.
func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.M:
		doc := models.Document{}
		for k, item := range t {
			doc[k] = fromBSONValue(item)
		}
		return doc
	case primitive.D:
		doc := models.Document{}
		for _, e := range t {
			doc[e.Key] = fromBSONValue(e.Value)
		}
		return doc
	case primitive.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSONValue(item)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	case time.Time:
		return t.UTC()
	}
	return v
}
