package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hseproject/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeStringList
	TypeObject
	TypeObjectList
)

// Field declares one property of a record kind.
type Field struct {
	Name      string
	Type      FieldType
	Enum      []string
	Default   any
	Sub       []Field
	IsDerived bool // recomputed on every write
	IsCounter bool // changed only through counter increments
	AutoID    bool // ObjectList entries get an "id" when missing
}

func String(name string) Field { return Field{Name: name, Type: TypeString} }
func Int(name string) Field    { return Field{Name: name, Type: TypeInt} }
func Float(name string) Field  { return Field{Name: name, Type: TypeFloat} }
func Bool(name string) Field   { return Field{Name: name, Type: TypeBool} }
func Time(name string) Field   { return Field{Name: name, Type: TypeTime} }

// Strings is a free-text list; blank entries are dropped on normalization.
func Strings(name string) Field { return Field{Name: name, Type: TypeStringList} }

func Enum(name string, values ...string) Field {
	return Field{Name: name, Type: TypeString, Enum: values}
}

func Object(name string, sub ...Field) Field {
	return Field{Name: name, Type: TypeObject, Sub: sub}
}

func Objects(name string, sub ...Field) Field {
	return Field{Name: name, Type: TypeObjectList, Sub: sub}
}

func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

func (f Field) Derived() Field {
	f.IsDerived = true
	return f
}

func (f Field) Counter() Field {
	f.IsCounter = true
	f.Default = int64(0)
	return f
}

func (f Field) WithIDs() Field {
	f.AutoID = true
	return f
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// normalizeFields keeps only declared fields of in and coerces them to
// their canonical types. Blank strings and empty times are dropped.
func normalizeFields(in models.Document, fields []Field, prefix string, ve *ValidationError) models.Document {
	out := models.Document{}
	for _, f := range fields {
		raw, ok := in[f.Name]
		if !ok || raw == nil {
			continue
		}
		if v, keep := f.normalize(raw, join(prefix, f.Name), ve); keep {
			out[f.Name] = v
		}
	}
	return out
}

func (f Field) normalize(raw any, path string, ve *ValidationError) (any, bool) {
	switch f.Type {
	case TypeString:
		switch v := raw.(type) {
		case string:
			s := strings.TrimSpace(v)
			return s, s != ""
		case bool:
			return strconv.FormatBool(v), true
		}
		if n, ok := models.ToFloat(raw); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), true
		}
		ve.Add(path, path+" must be text")
	case TypeInt:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, false
		}
		if n, ok := models.ToFloat(raw); ok {
			r := math.Round(n)
			if math.IsNaN(r) || r < math.MinInt64 || r >= math.MaxInt64 {
				ve.Add(path, path+" is out of range")
				return nil, false
			}
			return int64(r), true
		}
		ve.Add(path, path+" must be a number")
	case TypeFloat:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, false
		}
		if n, ok := models.ToFloat(raw); ok {
			if math.IsNaN(n) || math.IsInf(n, 0) {
				ve.Add(path, path+" must be a finite number")
				return nil, false
			}
			return n, true
		}
		ve.Add(path, path+" must be a number")
	case TypeBool:
		if b, ok := models.ToBool(raw); ok {
			return b, true
		}
		ve.Add(path, path+" must be true or false")
	case TypeTime:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, false
		}
		if t, ok := models.ToTime(raw); ok {
			return t, true
		}
		ve.Add(path, path+" must be a valid date")
	case TypeStringList:
		return normalizeStrings(raw, path, ve)
	case TypeObject:
		m, ok := models.AsDocument(raw)
		if !ok {
			ve.Add(path, path+" must be an object")
			return nil, false
		}
		if len(f.Sub) == 0 {
			return m.Clone(), true
		}
		return normalizeFields(m, f.Sub, path, ve), true
	case TypeObjectList:
		return f.normalizeList(raw, path, ve)
	}
	return nil, false
}

func normalizeStrings(raw any, path string, ve *ValidationError) (any, bool) {
	var items []any
	switch l := raw.(type) {
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case []any:
		items = l
	default:
		ve.Add(path, path+" must be a list of text")
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case nil:
		default:
			if n, ok := models.ToFloat(v); ok {
				out = append(out, strconv.FormatFloat(n, 'f', -1, 64))
				continue
			}
			ve.Add(path, path+" must be a list of text")
			return nil, false
		}
	}
	return out, true
}

func (f Field) normalizeList(raw any, path string, ve *ValidationError) (any, bool) {
	var items []any
	switch l := raw.(type) {
	case []any:
		items = l
	case []models.Document:
		for _, d := range l {
			items = append(items, d)
		}
	case []map[string]any:
		for _, d := range l {
			items = append(items, d)
		}
	default:
		ve.Add(path, path+" must be a list")
		return nil, false
	}
	out := make([]models.Document, 0, len(items))
	for i, item := range items {
		m, ok := models.AsDocument(item)
		if !ok {
			ve.Add(fmt.Sprintf("%s[%d]", path, i), fmt.Sprintf("%s[%d] must be an object", path, i))
			continue
		}
		entry := normalizeFields(m, f.Sub, fmt.Sprintf("%s[%d]", path, i), ve)
		applyDefaults(entry, f.Sub)
		if f.AutoID && entry.String("id") == "" {
			entry["id"] = primitive.NewObjectID().Hex()
		}
		out = append(out, entry)
	}
	return out, true
}

// applyDefaults fills missing fields and recurses into present objects.
func applyDefaults(doc models.Document, fields []Field) {
	for _, f := range fields {
		if _, ok := doc[f.Name]; !ok && f.Default != nil {
			doc[f.Name] = f.Default
		}
		if f.Type == TypeObject && len(f.Sub) > 0 {
			if m, ok := models.AsDocument(doc[f.Name]); ok {
				applyDefaults(m, f.Sub)
			}
		}
	}
}

// checkEnums reports values outside a field's enumeration.
func checkEnums(doc models.Document, fields []Field, prefix string, ve *ValidationError) {
	for _, f := range fields {
		path := join(prefix, f.Name)
		switch {
		case len(f.Enum) > 0:
			if v := doc.String(f.Name); v != "" && !contains(f.Enum, v) {
				ve.Add(path, fmt.Sprintf("%s must be one of: %s", path, strings.Join(f.Enum, ", ")))
			}
		case f.Type == TypeObject:
			if m := doc.Object(f.Name); m != nil {
				checkEnums(m, f.Sub, path, ve)
			}
		case f.Type == TypeObjectList:
			for i, entry := range doc.Objects(f.Name) {
				checkEnums(entry, f.Sub, fmt.Sprintf("%s[%d]", path, i), ve)
			}
		}
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// stripDerived drops caller-supplied values for derived and counter fields.
func stripDerived(doc models.Document, fields []Field) {
	for _, f := range fields {
		if f.IsDerived || f.IsCounter {
			delete(doc, f.Name)
			continue
		}
		if f.Type == TypeObject && len(f.Sub) > 0 {
			if m, ok := models.AsDocument(doc[f.Name]); ok {
				stripDerived(m, f.Sub)
			}
		}
	}
}
