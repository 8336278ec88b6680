package repository

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"hseproject/models"
)

// values collects every value reachable through path, flattening lists.
func values(v any, parts []string) []any {
	if len(parts) == 0 {
		switch l := v.(type) {
		case []any:
			return l
		case []string:
			out := make([]any, len(l))
			for i, s := range l {
				out[i] = s
			}
			return out
		case []models.Document:
			out := make([]any, len(l))
			for i, d := range l {
				out[i] = d
			}
			return out
		case nil:
			return nil
		}
		return []any{v}
	}
	if m, ok := models.AsDocument(v); ok {
		next, ok := m[parts[0]]
		if !ok {
			return nil
		}
		return values(next, parts[1:])
	}
	var out []any
	for _, item := range models.AsDocuments(v) {
		out = append(out, values(item, parts)...)
	}
	return out
}

func lookup(doc models.Document, path string) []any {
	return values(doc, strings.Split(path, "."))
}

// compare orders two scalar values. ok is false when they are not comparable.
func compare(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		if !ab {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func numeric(v any) (float64, bool) {
	switch v.(type) {
	case string, bool, nil:
		return 0, false
	}
	return models.ToFloat(v)
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func listOf(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

func (c Cond) matches(doc models.Document) bool {
	vals := lookup(doc, c.Field)
	switch c.Op {
	case OpExists:
		want, _ := c.Value.(bool)
		return (len(vals) > 0) == want
	case OpNe:
		for _, v := range vals {
			if equal(v, c.Value) {
				return false
			}
		}
		return true
	case OpNin:
		for _, v := range vals {
			for _, candidate := range listOf(c.Value) {
				if equal(v, candidate) {
					return false
				}
			}
		}
		return true
	}
	for _, v := range vals {
		if c.matchValue(v) {
			return true
		}
	}
	return false
}

func (c Cond) matchValue(v any) bool {
	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpIn:
		for _, candidate := range listOf(c.Value) {
			if equal(v, candidate) {
				return true
			}
		}
		return false
	case OpContains:
		s, ok := v.(string)
		needle, _ := c.Value.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	}
	cmp, ok := compare(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

// Matches evaluates q against doc in memory.
func (q Query) Matches(doc models.Document) bool {
	for _, c := range q.Conds {
		if !c.matches(doc) {
			return false
		}
	}
	if len(q.Or) == 0 {
		return true
	}
	for _, c := range q.Or {
		if c.matches(doc) {
			return true
		}
	}
	return false
}

func first(doc models.Document, path string) any {
	vals := lookup(doc, path)
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

func sortDocuments(docs []models.Document, keys []Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, b := first(docs[i], k.Field), first(docs[j], k.Field)
			cmp := compareNullable(a, b)
			if cmp == 0 {
				continue
			}
			if k.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareNullable sorts missing values first, as the document store does.
func compareNullable(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, ok := compare(a, b)
	if !ok {
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return cmp
}

func bucketKey(v any, b Bucket) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch b {
	case BucketDay:
		return t.UTC().Format("2006-01-02")
	case BucketMonth:
		return t.UTC().Format("2006-01")
	}
	return v
}

type accumulator struct {
	key   any
	sums  map[string]float64
	seen  map[string]int
	order int
}

// aggregateInMemory evaluates agg over docs with the same result shape as
// the Mongo pipeline built by buildPipeline.
func aggregateInMemory(docs []models.Document, agg Aggregation) []models.Document {
	var rows []models.Document
	for _, doc := range docs {
		if !agg.Match.Matches(doc) {
			continue
		}
		if agg.Unwind == "" {
			rows = append(rows, doc)
			continue
		}
		for _, item := range lookup(doc, agg.Unwind) {
			row := doc.Clone()
			row.Set(agg.Unwind, item)
			rows = append(rows, row)
		}
	}

	groups := map[string]*accumulator{}
	var ordered []*accumulator
	for _, row := range rows {
		var key any
		if agg.GroupBy != "" {
			key = bucketKey(first(row, agg.GroupBy), agg.Bucket)
		}
		id := fmt.Sprintf("%T:%v", key, key)
		acc, ok := groups[id]
		if !ok {
			acc = &accumulator{key: key, sums: map[string]float64{}, seen: map[string]int{}, order: len(ordered)}
			groups[id] = acc
			ordered = append(ordered, acc)
		}
		for _, m := range agg.Metrics {
			acc.add(m, row)
		}
	}

	out := make([]models.Document, 0, len(ordered))
	for _, acc := range ordered {
		res := models.Document{"_id": acc.key}
		for _, m := range agg.Metrics {
			res[m.Name] = acc.result(m)
		}
		out = append(out, res)
	}
	if agg.SortBy != "" {
		sortDocuments(out, []Sort{{Field: agg.SortBy, Desc: agg.SortDesc}})
	}
	if agg.Limit > 0 && len(out) > agg.Limit {
		out = out[:agg.Limit]
	}
	return out
}

func (a *accumulator) add(m Metric, row models.Document) {
	switch m.Op {
	case MetricCount:
		a.sums[m.Name]++
		return
	case MetricCountIf:
		if m.Where != nil && m.Where.matches(row) {
			a.sums[m.Name]++
		}
		return
	}
	f, ok := numeric(first(row, m.Field))
	if !ok {
		return
	}
	n := a.seen[m.Name]
	switch m.Op {
	case MetricSum, MetricAvg:
		a.sums[m.Name] += f
	case MetricMin:
		if n == 0 || f < a.sums[m.Name] {
			a.sums[m.Name] = f
		}
	case MetricMax:
		if n == 0 || f > a.sums[m.Name] {
			a.sums[m.Name] = f
		}
	}
	a.seen[m.Name] = n + 1
}

func (a *accumulator) result(m Metric) any {
	switch m.Op {
	case MetricAvg:
		if a.seen[m.Name] == 0 {
			return nil
		}
		return a.sums[m.Name] / float64(a.seen[m.Name])
	case MetricMin, MetricMax:
		if a.seen[m.Name] == 0 {
			return nil
		}
	}
	return a.sums[m.Name]
}
