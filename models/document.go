package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is the body of a single HSE record. Values are kept in their
// canonical Go form once a record kind has normalized them: string, bool,
// int64, float64, time.Time, []string, Document and []Document.
type Document map[string]any

// Envelope field names shared by every record kind.
const (
	FieldID        = "id"
	FieldProjectID = "projectId"
	FieldStatus    = "status"
	FieldCreatedBy = "createdBy"
	FieldUpdatedBy = "updatedBy"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// SystemFields are maintained by the record service and never taken from a caller.
var SystemFields = []string{FieldID, FieldCreatedBy, FieldUpdatedBy, FieldCreatedAt, FieldUpdatedAt}

func (d Document) ID() string {
	return d.String(FieldID)
}

// Get resolves a dotted path ("ssoReview.siteStatus").
func (d Document) Get(path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		m, ok := AsDocument(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, cur != nil
}

// Set writes a dotted path, creating intermediate objects as needed.
func (d Document) Set(path string, v any) {
	parts := strings.Split(path, ".")
	cur := d
	for _, part := range parts[:len(parts)-1] {
		next, ok := AsDocument(cur[part])
		if !ok {
			next = Document{}
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func (d Document) Delete(path string) {
	parts := strings.Split(path, ".")
	cur := d
	for _, part := range parts[:len(parts)-1] {
		next, ok := AsDocument(cur[part])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Has reports whether path holds a non-nil value.
func (d Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Present reports whether path holds a value that counts as filled in:
// non-blank strings, non-empty lists and any number, bool or time.
func (d Document) Present(path string) bool {
	v, ok := d.Get(path)
	if !ok {
		return false
	}
	return !IsBlank(v)
}

func (d Document) String(path string) string {
	v, _ := d.Get(path)
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case json.Number:
		return s.String()
	}
	return ""
}

func (d Document) Bool(path string) bool {
	v, _ := d.Get(path)
	b, _ := ToBool(v)
	return b
}

func (d Document) Int(path string) int64 {
	v, _ := d.Get(path)
	f, ok := ToFloat(v)
	if !ok {
		return 0
	}
	return int64(math.Round(f))
}

func (d Document) Float(path string) float64 {
	v, _ := d.Get(path)
	f, _ := ToFloat(v)
	return f
}

// Time returns the time stored at path and whether one was set.
func (d Document) Time(path string) (time.Time, bool) {
	v, _ := d.Get(path)
	return ToTime(v)
}

func (d Document) Strings(path string) []string {
	v, _ := d.Get(path)
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Object returns the nested object at path, or nil.
func (d Document) Object(path string) Document {
	v, _ := d.Get(path)
	m, _ := AsDocument(v)
	return m
}

// Objects returns the list of nested objects at path.
func (d Document) Objects(path string) []Document {
	v, _ := d.Get(path)
	return AsDocuments(v)
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(d).(Document)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		out := make(Document, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(Document, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []Document:
		out := make([]Document, len(t))
		for i, item := range t {
			out[i] = cloneValue(item).(Document)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// AsDocument converts the map shapes produced by JSON and BSON decoding.
func AsDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

func AsDocuments(v any) []Document {
	switch l := v.(type) {
	case []Document:
		return l
	case []any:
		out := make([]Document, 0, len(l))
		for _, item := range l {
			if m, ok := AsDocument(item); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		out := make([]Document, 0, len(l))
		for _, item := range l {
			out = append(out, Document(item))
		}
		return out
	}
	return nil
}

// IsBlank reports whether v is nil, a whitespace-only string or an empty list.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case []Document:
		return len(t) == 0
	case time.Time:
		return t.IsZero()
	}
	return false
}

func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}

// Accepted textual time layouts, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
