package repository

import (
	"context"
	"errors"

	"hseproject/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Op is a comparison applied by a Cond.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpIn       Op = "in"
	OpNin      Op = "nin"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains" // case-insensitive substring
	OpExists   Op = "exists"   // Value is a bool
)

// Cond is a single field predicate. A path that crosses a list matches when
// any element satisfies it, the same way the document store does it.
type Cond struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Cond       { return Cond{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Cond       { return Cond{Field: field, Op: OpNe, Value: v} }
func In(field string, v ...any) Cond    { return Cond{Field: field, Op: OpIn, Value: v} }
func Nin(field string, v ...any) Cond   { return Cond{Field: field, Op: OpNin, Value: v} }
func Lt(field string, v any) Cond       { return Cond{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Cond      { return Cond{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v any) Cond       { return Cond{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Cond      { return Cond{Field: field, Op: OpGte, Value: v} }
func Contains(field, s string) Cond     { return Cond{Field: field, Op: OpContains, Value: s} }
func Exists(field string, ok bool) Cond { return Cond{Field: field, Op: OpExists, Value: ok} }

// Query is a conjunction of Conds plus an optional disjunction.
type Query struct {
	Conds []Cond
	Or    []Cond
}

func Where(conds ...Cond) Query {
	return Query{Conds: conds}
}

func (q Query) And(conds ...Cond) Query {
	out := Query{Conds: append(append([]Cond(nil), q.Conds...), conds...), Or: q.Or}
	return out
}

type Sort struct {
	Field string
	Desc  bool
}

type FindOptions struct {
	Sort  []Sort
	Skip  int64
	Limit int64
}

// Bucket groups a date-valued key by calendar period.
type Bucket string

const (
	BucketNone  Bucket = ""
	BucketDay   Bucket = "day"
	BucketMonth Bucket = "month"
)

type MetricOp string

const (
	MetricCount   MetricOp = "count"
	MetricCountIf MetricOp = "countIf"
	MetricSum     MetricOp = "sum"
	MetricAvg     MetricOp = "avg"
	MetricMin     MetricOp = "min"
	MetricMax     MetricOp = "max"
)

// Metric is one accumulator of an Aggregation.
type Metric struct {
	Name  string
	Op    MetricOp
	Field string
	Where *Cond // MetricCountIf only; supports Eq, Ne, In, Lt, Lte, Gt, Gte
}

func Count(name string) Metric               { return Metric{Name: name, Op: MetricCount} }
func CountIf(name string, c Cond) Metric     { return Metric{Name: name, Op: MetricCountIf, Where: &c} }
func Sum(name, field string) Metric          { return Metric{Name: name, Op: MetricSum, Field: field} }
func Avg(name, field string) Metric          { return Metric{Name: name, Op: MetricAvg, Field: field} }
func Min(name, field string) Metric          { return Metric{Name: name, Op: MetricMin, Field: field} }
func Max(name, field string) Metric          { return Metric{Name: name, Op: MetricMax, Field: field} }

// Aggregation describes a match/unwind/group/sort/limit pipeline. Each result
// row is a Document with the group key under "_id" and one entry per metric.
// An empty GroupBy folds every matching record into a single row.
type Aggregation struct {
	Match    Query
	Unwind   string
	GroupBy  string
	Bucket   Bucket
	Metrics  []Metric
	SortBy   string // metric name or "_id"
	SortDesc bool
	Limit    int
}

// RecordRepository stores the records of one kind.
type RecordRepository interface {
	Collection() string
	Insert(ctx context.Context, doc models.Document) error
	FindByID(ctx context.Context, id string) (models.Document, error)
	Replace(ctx context.Context, id string, doc models.Document) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, q Query, opts FindOptions) ([]models.Document, error)
	Count(ctx context.Context, q Query) (int64, error)
	Exists(ctx context.Context, q Query) (bool, error)
	Increment(ctx context.Context, id, field string, delta int64) (models.Document, error)
	Aggregate(ctx context.Context, agg Aggregation) ([]models.Document, error)
}

// Store hands out one repository per collection. Each unique entry lists
// the fields of one unique key.
type Store interface {
	Records(collection string, unique ...[]string) RecordRepository
}
